package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"testing"

	"github.com/erazemk/galerija/internal/model"
)

const (
	creator model.Identity = "A"
	admin   model.Identity = "D"
	user1   model.Identity = "U1"
	user2   model.Identity = "U2"
)

var royalty = model.MustParseAmount("0.01")

// recorder is a Journal that keeps every committed entry and can be told
// to fail the next commit.
type recorder struct {
	entries []Entry
	fail    error
}

func (r *recorder) Commit(_ context.Context, e Entry) error {
	if r.fail != nil {
		err := r.fail
		r.fail = nil
		return err
	}
	r.entries = append(r.entries, e)
	return nil
}

func units(ns ...int) []model.Amount {
	out := make([]model.Amount, len(ns))
	for i, n := range ns {
		out[i] = model.Amount(n) * model.Unit
	}
	return out
}

func newTestLedger(t *testing.T, opts ...Option) *Ledger {
	t.Helper()
	prices := units(1, 2, 3, 4, 5, 6, 7, 8)
	l, err := Initialize(context.Background(), Config{
		Administrator: admin,
		Creator:       creator,
		RoyaltyRate:   royalty,
		BaseURI:       "ipfs://collection/",
	}, prices, 36*model.Unit, opts...)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return l
}

func ids(items []model.Item) []int64 {
	out := make([]int64, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestInitialize(t *testing.T) {
	l := newTestLedger(t)

	if l.ItemCount() != 8 {
		t.Fatalf("expected 8 items, got %d", l.ItemCount())
	}
	for it := range l.Items() {
		seller, ok := it.Seller()
		if !ok || seller != admin {
			t.Errorf("item %d: expected available from %q, got %+v", it.ID, admin, it)
		}
		if it.Price != model.Amount(it.ID+1)*model.Unit {
			t.Errorf("item %d: unexpected price %s", it.ID, it.Price)
		}
	}
	if l.Pool() != 36*model.Unit {
		t.Errorf("expected pool 36, got %s", l.Pool())
	}
	if l.Administrator() != admin || l.Creator() != creator || l.RoyaltyRate() != royalty {
		t.Errorf("unexpected config %+v", l.Config())
	}
}

func TestInitializeValidation(t *testing.T) {
	ctx := context.Background()
	cfg := Config{Administrator: admin, Creator: creator}

	tests := []struct {
		name    string
		prices  []model.Amount
		funding model.Amount
		want    error
	}{
		{"no items", nil, 0, ErrNoItems},
		{"zero price", units(1, 0, 2), 10 * model.Unit, ErrInvalidPrice},
		{"underfunded", units(1, 2, 3), 5 * model.Unit, ErrIncorrectPayment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Initialize(ctx, cfg, tt.prices, tt.funding)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	// Overfunding is accepted.
	if _, err := Initialize(ctx, cfg, units(1, 2), 10*model.Unit); err != nil {
		t.Errorf("expected overfunded initialization to succeed: %v", err)
	}
}

func TestInitializeJournalFailure(t *testing.T) {
	rec := &recorder{fail: errors.New("disk full")}
	_, err := Initialize(context.Background(), Config{Administrator: admin}, units(1), model.Unit, WithJournal(rec))
	if err == nil {
		t.Fatal("expected journal error")
	}
}

func TestBuyFirstSale(t *testing.T) {
	rec := &recorder{}
	l := newTestLedger(t, WithJournal(rec))
	ctx := context.Background()

	event, err := l.BuyItem(ctx, user1, 0, model.Unit)
	if err != nil {
		t.Fatalf("BuyItem: %v", err)
	}

	if event.Kind != model.EventSold || *event.ItemID != 0 || event.Seller != admin || event.Buyer != user1 || event.Price != model.Unit {
		t.Errorf("unexpected event %+v", event)
	}

	item, _ := l.Item(0)
	if owner, ok := item.Owner(); !ok || owner != user1 {
		t.Errorf("expected item 0 owned by U1, got %+v", item)
	}
	if _, ok := item.Seller(); ok {
		t.Error("sold item must have no seller")
	}

	if got := l.Balance(admin); got != model.Unit {
		t.Errorf("expected administrator balance 1, got %s", got)
	}
	if got := l.Balance(creator); got != royalty {
		t.Errorf("expected creator balance 0.01, got %s", got)
	}

	last := rec.entries[len(rec.entries)-1]
	if len(last.Payments) != 2 {
		t.Fatalf("expected 2 payments, got %d", len(last.Payments))
	}
	if last.Inflow != model.Unit || last.Payer != user1 {
		t.Errorf("unexpected inflow %s from %q", last.Inflow, last.Payer)
	}
}

func TestBuyIncorrectPayment(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	for _, payment := range []model.Amount{0, model.Unit - 1, model.Unit + 1, 2 * model.Unit} {
		_, err := l.BuyItem(ctx, user1, 0, payment)
		if !errors.Is(err, ErrIncorrectPayment) {
			t.Errorf("payment %s: expected ErrIncorrectPayment, got %v", payment, err)
		}
	}

	item, _ := l.Item(0)
	if !item.Available() || item.Price != model.Unit || item.Holder != admin {
		t.Errorf("expected item 0 unchanged, got %+v", item)
	}
	if l.Balance(admin) != 0 || l.Pool() != 36*model.Unit {
		t.Error("failed purchase must not move funds")
	}
}

func TestBuyUnavailableAndOutOfRange(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	if _, err := l.BuyItem(ctx, user1, 0, model.Unit); err != nil {
		t.Fatalf("BuyItem: %v", err)
	}
	if _, err := l.BuyItem(ctx, user2, 0, model.Unit); !errors.Is(err, ErrItemUnavailable) {
		t.Errorf("expected ErrItemUnavailable, got %v", err)
	}
	for _, id := range []int64{-1, 8, 100} {
		if _, err := l.BuyItem(ctx, user1, id, model.Unit); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("id %d: expected ErrOutOfRange, got %v", id, err)
		}
	}
	if _, err := l.Item(8); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange from Item, got %v", err)
	}
}

func TestRelistRoundTrip(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	if _, err := l.BuyItem(ctx, user1, 0, model.Unit); err != nil {
		t.Fatalf("BuyItem: %v", err)
	}

	event, err := l.RelistItem(ctx, user1, 0, 2*model.Unit, royalty)
	if err != nil {
		t.Fatalf("RelistItem: %v", err)
	}
	if event.Kind != model.EventRelisted || event.Seller != user1 || event.Price != 2*model.Unit {
		t.Errorf("unexpected event %+v", event)
	}

	item, _ := l.Item(0)
	seller, ok := item.Seller()
	if !ok || seller != user1 || item.Price != 2*model.Unit {
		t.Errorf("expected item 0 available from U1 at 2, got %+v", item)
	}

	// A later sale pays the reseller, not the administrator.
	if _, err := l.BuyItem(ctx, user2, 0, 2*model.Unit); err != nil {
		t.Fatalf("second BuyItem: %v", err)
	}
	if got := l.Balance(user1); got != 2*model.Unit {
		t.Errorf("expected reseller balance 2, got %s", got)
	}
	if got := l.Balance(admin); got != model.Unit {
		t.Errorf("expected administrator balance unchanged at 1, got %s", got)
	}
	if got := l.Balance(creator); got != 2*royalty {
		t.Errorf("expected creator balance 0.02, got %s", got)
	}
}

func TestRelistValidation(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	if _, err := l.BuyItem(ctx, user1, 0, model.Unit); err != nil {
		t.Fatalf("BuyItem: %v", err)
	}

	tests := []struct {
		name    string
		caller  model.Identity
		id      int64
		price   model.Amount
		royalty model.Amount
		want    error
	}{
		{"zero price", user1, 0, 0, royalty, ErrInvalidPrice},
		{"not owner", user2, 0, 2 * model.Unit, royalty, ErrUnauthorized},
		{"administrator is not owner", admin, 0, 2 * model.Unit, royalty, ErrUnauthorized},
		{"available item", admin, 1, 2 * model.Unit, royalty, ErrUnauthorized},
		{"missing royalty", user1, 0, 2 * model.Unit, 0, ErrRoyaltyRequired},
		{"excess royalty", user1, 0, 2 * model.Unit, 2 * royalty, ErrRoyaltyRequired},
		{"out of range", user1, 8, 2 * model.Unit, royalty, ErrOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.RelistItem(ctx, tt.caller, tt.id, tt.price, tt.royalty)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	item, _ := l.Item(0)
	if owner, ok := item.Owner(); !ok || owner != user1 || item.Price != model.Unit {
		t.Errorf("expected item 0 unchanged, got %+v", item)
	}
}

func TestUpdateRoyaltyFee(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	if _, err := l.UpdateRoyaltyFee(ctx, user1, 0); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	if l.RoyaltyRate() != royalty {
		t.Errorf("royalty changed by non-administrator: %s", l.RoyaltyRate())
	}

	newFee := model.MustParseAmount("0.05")
	event, err := l.UpdateRoyaltyFee(ctx, admin, newFee)
	if err != nil {
		t.Fatalf("UpdateRoyaltyFee: %v", err)
	}
	if event.Kind != model.EventRoyaltyUpdated || event.Price != newFee {
		t.Errorf("unexpected event %+v", event)
	}
	if l.RoyaltyRate() != newFee {
		t.Errorf("expected royalty 0.05, got %s", l.RoyaltyRate())
	}

	// Zero is accepted and disables the royalty payment.
	if _, err := l.UpdateRoyaltyFee(ctx, admin, 0); err != nil {
		t.Fatalf("UpdateRoyaltyFee(0): %v", err)
	}
	if _, err := l.BuyItem(ctx, user1, 0, model.Unit); err != nil {
		t.Fatalf("BuyItem: %v", err)
	}
	if l.Balance(creator) != 0 {
		t.Errorf("expected no royalty paid, got %s", l.Balance(creator))
	}
}

func TestQueries(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	for _, buy := range []struct {
		caller model.Identity
		id     int64
	}{{user1, 0}, {user1, 1}, {user2, 4}} {
		item, _ := l.Item(buy.id)
		if _, err := l.BuyItem(ctx, buy.caller, buy.id, item.Price); err != nil {
			t.Fatalf("BuyItem(%d): %v", buy.id, err)
		}
	}

	unsold := l.UnsoldItems()
	if got := ids(slices.Collect(unsold)); !slices.Equal(got, []int64{2, 3, 5, 6, 7}) {
		t.Errorf("unexpected unsold items %v", got)
	}
	// Sequences are restartable.
	if got := ids(slices.Collect(unsold)); len(got) != 5 {
		t.Errorf("expected restarted sequence to yield 5 items, got %v", got)
	}

	if got := ids(slices.Collect(l.OwnedItems(user1))); !slices.Equal(got, []int64{0, 1}) {
		t.Errorf("unexpected U1 items %v", got)
	}
	if got := ids(slices.Collect(l.OwnedItems(user2))); !slices.Equal(got, []int64{4}) {
		t.Errorf("unexpected U2 items %v", got)
	}
	if got := slices.Collect(l.OwnedItems(admin)); len(got) != 0 {
		t.Errorf("administrator owns nothing, got %v", got)
	}

	// A snapshot taken before a mutation does not observe it.
	before := l.UnsoldItems()
	if _, err := l.BuyItem(ctx, user2, 2, 3*model.Unit); err != nil {
		t.Fatalf("BuyItem: %v", err)
	}
	if got := ids(slices.Collect(before)); len(got) != 5 {
		t.Errorf("expected snapshot of 5 items, got %v", got)
	}

	// Early termination.
	for it := range l.UnsoldItems() {
		if it.ID != 3 {
			t.Errorf("expected first unsold item 3, got %d", it.ID)
		}
		break
	}
}

func TestExactlyOneHolder(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	l.BuyItem(ctx, user1, 0, model.Unit)
	l.BuyItem(ctx, user2, 1, 2*model.Unit)
	l.RelistItem(ctx, user1, 0, 5*model.Unit, royalty)

	for it := range l.Items() {
		_, available := it.Seller()
		_, owned := it.Owner()
		if available == owned {
			t.Errorf("item %d: available=%v owned=%v", it.ID, available, owned)
		}
		if available && it.Price == 0 {
			t.Errorf("item %d listed at zero", it.ID)
		}
	}
}

func TestPoolReconciliation(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	funding := l.Pool()

	steps := []func() error{
		func() error { _, err := l.BuyItem(ctx, user1, 0, model.Unit); return err },
		func() error { _, err := l.BuyItem(ctx, user1, 3, 4*model.Unit); return err },
		func() error { _, err := l.RelistItem(ctx, user1, 0, 9*model.Unit, royalty); return err },
		func() error { _, err := l.BuyItem(ctx, user2, 0, 9*model.Unit); return err },
		func() error { _, err := l.RelistItem(ctx, user2, 0, model.Unit, royalty); return err },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	relistRoyalties := 2 * royalty
	saleRoyalties := 3 * royalty
	if want := funding + relistRoyalties - saleRoyalties; l.Pool() != want {
		t.Errorf("expected pool %s, got %s", want, l.Pool())
	}

	totals := l.Totals()
	if totals.Sales != 3 || totals.RoyaltiesPaid != saleRoyalties || totals.Volume != 14*model.Unit {
		t.Errorf("unexpected totals %+v", totals)
	}
}

func TestBuyInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	l, err := Initialize(ctx, Config{
		Administrator: admin,
		Creator:       creator,
		RoyaltyRate:   model.Unit,
	}, units(1, 1), 2*model.Unit)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	l.BuyItem(ctx, user1, 0, model.Unit)
	l.BuyItem(ctx, user1, 1, model.Unit)
	if l.Pool() != 0 {
		t.Fatalf("expected empty pool, got %s", l.Pool())
	}

	// Relisting refills the pool by exactly one royalty.
	if _, err := l.RelistItem(ctx, user1, 0, model.Unit, model.Unit); err != nil {
		t.Fatalf("RelistItem: %v", err)
	}
	if _, err := l.UpdateRoyaltyFee(ctx, admin, 2*model.Unit); err != nil {
		t.Fatalf("UpdateRoyaltyFee: %v", err)
	}
	if _, err := l.BuyItem(ctx, user2, 0, model.Unit); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}
	item, _ := l.Item(0)
	if !item.Available() {
		t.Error("failed purchase must leave the item available")
	}
}

func TestJournalFailureRollsBack(t *testing.T) {
	rec := &recorder{}
	l := newTestLedger(t, WithJournal(rec))
	ctx := context.Background()

	rec.fail = errors.New("transfer rejected")
	if _, err := l.BuyItem(ctx, user1, 0, model.Unit); err == nil {
		t.Fatal("expected error")
	}

	item, _ := l.Item(0)
	if !item.Available() {
		t.Error("expected item still available after failed commit")
	}
	if l.Balance(admin) != 0 || l.Pool() != 36*model.Unit || l.Totals().Sales != 0 {
		t.Error("failed commit must not move funds")
	}

	// The sequence number is not consumed by a failed commit.
	event, err := l.BuyItem(ctx, user1, 0, model.Unit)
	if err != nil {
		t.Fatalf("BuyItem: %v", err)
	}
	if event.Seq != 2 {
		t.Errorf("expected seq 2, got %d", event.Seq)
	}
}

func TestItemURI(t *testing.T) {
	l := newTestLedger(t)

	uri, err := l.ItemURI(3)
	if err != nil {
		t.Fatalf("ItemURI: %v", err)
	}
	if uri != "ipfs://collection/3" {
		t.Errorf("unexpected uri %q", uri)
	}
	if l.BaseURI() != "ipfs://collection/" {
		t.Errorf("unexpected base uri %q", l.BaseURI())
	}
	if _, err := l.ItemURI(8); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	l.BuyItem(ctx, user1, 0, model.Unit)
	l.RelistItem(ctx, user1, 0, 3*model.Unit, royalty)

	restored, err := Restore(l.Snapshot())
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored.Pool() != l.Pool() || restored.Balance(admin) != l.Balance(admin) || restored.Totals() != l.Totals() {
		t.Error("restored ledger differs from original")
	}

	event, err := restored.BuyItem(ctx, user2, 0, 3*model.Unit)
	if err != nil {
		t.Fatalf("BuyItem on restored ledger: %v", err)
	}
	if event.Seq != 4 || event.Seller != user1 {
		t.Errorf("unexpected event %+v", event)
	}
}

func TestRestoreRejectsGaps(t *testing.T) {
	snap := Snapshot{Items: []model.Item{
		model.Listed(0, admin, model.Unit),
		model.Listed(2, admin, model.Unit),
	}}
	if _, err := Restore(snap); err == nil {
		t.Error("expected error for non-dense ids")
	}
	if _, err := Restore(Snapshot{}); !errors.Is(err, ErrNoItems) {
		t.Errorf("expected ErrNoItems, got %v", err)
	}
}

func TestHubReceivesCommittedEvents(t *testing.T) {
	hub := NewHub()
	events, unsubscribe := hub.Subscribe(8)
	defer unsubscribe()

	l := newTestLedger(t, WithHub(hub))
	ctx := context.Background()
	l.BuyItem(ctx, user1, 0, 2*model.Unit) // rejected, not published
	l.BuyItem(ctx, user1, 0, model.Unit)

	got := []string{(<-events).Kind, (<-events).Kind}
	if !slices.Equal(got, []string{model.EventInitialized, model.EventSold}) {
		t.Errorf("unexpected events %v", got)
	}
	select {
	case e := <-events:
		t.Errorf("unexpected extra event %+v", e)
	default:
	}

	unsubscribe()
	unsubscribe()
	if hub.Subscribers() != 0 {
		t.Errorf("expected no subscribers, got %d", hub.Subscribers())
	}
}

func TestConcurrentBuyersSingleWinner(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	const buyers = 50
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []model.Identity
	)
	for i := range buyers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buyer := model.Identity(fmt.Sprintf("B%d", i))
			_, err := l.BuyItem(ctx, buyer, 0, model.Unit)
			for it := range l.UnsoldItems() {
				if it.ID == 0 && it.Status != model.ItemStatusAvailable {
					t.Errorf("unsold query yielded owned item %+v", it)
				}
			}
			switch {
			case err == nil:
				mu.Lock()
				winners = append(winners, buyer)
				mu.Unlock()
			case !errors.Is(err, ErrItemUnavailable):
				t.Errorf("buyer %s: expected ErrItemUnavailable, got %v", buyer, err)
			}
		}()
	}
	wg.Wait()

	if len(winners) != 1 {
		t.Fatalf("expected exactly one winner, got %v", winners)
	}
	item, _ := l.Item(0)
	if owner, ok := item.Owner(); !ok || owner != winners[0] {
		t.Errorf("expected item 0 owned by %s, got %+v", winners[0], item)
	}
	if got := l.Balance(admin); got != model.Unit {
		t.Errorf("expected admin balance 1, got %s", got)
	}
	if want := 36*model.Unit - royalty; l.Pool() != want {
		t.Errorf("expected pool %s, got %s", want, l.Pool())
	}
	if got := l.Totals().Sales; got != 1 {
		t.Errorf("expected 1 sale, got %d", got)
	}
}

func TestBuyRejectsCounterOverflow(t *testing.T) {
	ctx := context.Background()
	cfg := Config{Administrator: admin, Creator: creator, RoyaltyRate: royalty}
	items := []model.Item{model.Listed(0, admin, model.Unit)}

	tests := []struct {
		name string
		snap Snapshot
	}{
		{"volume", Snapshot{Config: cfg, Items: items, Pool: model.Unit,
			Totals: model.Totals{Volume: math.MaxUint64}}},
		{"royalties paid", Snapshot{Config: cfg, Items: items, Pool: model.Unit,
			Totals: model.Totals{RoyaltiesPaid: math.MaxUint64}}},
		{"seller balance", Snapshot{Config: cfg, Items: items, Pool: model.Unit,
			Balances: map[model.Identity]model.Amount{admin: math.MaxUint64}}},
		{"creator balance", Snapshot{Config: cfg, Items: items, Pool: model.Unit,
			Balances: map[model.Identity]model.Amount{creator: math.MaxUint64}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			l, err := Restore(tt.snap, WithJournal(rec))
			if err != nil {
				t.Fatalf("Restore: %v", err)
			}
			before := l.Snapshot()

			if _, err := l.BuyItem(ctx, user1, 0, model.Unit); !errors.Is(err, ErrOverflow) {
				t.Fatalf("expected ErrOverflow, got %v", err)
			}
			if len(rec.entries) != 0 {
				t.Errorf("expected nothing committed, got %d entries", len(rec.entries))
			}
			after := l.Snapshot()
			if after.Totals != before.Totals || after.Pool != before.Pool || !after.Items[0].Available() {
				t.Errorf("ledger changed after rejected sale")
			}
		})
	}
}

func TestSellerIsCreatorCreditedOnce(t *testing.T) {
	l, err := Initialize(context.Background(), Config{
		Administrator: admin,
		Creator:       admin,
		RoyaltyRate:   royalty,
	}, units(2), 2*model.Unit)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if _, err := l.BuyItem(context.Background(), user1, 0, 2*model.Unit); err != nil {
		t.Fatalf("BuyItem: %v", err)
	}
	if want := 2*model.Unit + royalty; l.Balance(admin) != want {
		t.Errorf("expected admin balance %s, got %s", want, l.Balance(admin))
	}
}
