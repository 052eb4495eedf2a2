// Package ledger holds the ownership and listing state of a fixed
// collection of items and enforces its transition rules: every item is
// either available from a seller or owned by exactly one identity, a sale
// requires the exact asking price, and only the current owner may relist.
//
// All operations on a Ledger are serialised. A mutating operation builds
// the complete resulting state, hands it to the Journal, and applies it in
// memory only after the journal accepts it.
package ledger

import (
	"context"
	"fmt"
	"iter"
	"strconv"
	"sync"
	"time"

	"github.com/erazemk/galerija/internal/model"
)

// Config is the marketplace-level configuration captured at construction.
type Config struct {
	Administrator model.Identity `json:"administrator"`
	Creator       model.Identity `json:"creator"`
	RoyaltyRate   model.Amount   `json:"royalty_rate"`
	BaseURI       string         `json:"base_uri,omitempty"`
}

// Snapshot is the complete state of a ledger, as persisted externally.
type Snapshot struct {
	Config   Config
	Items    []model.Item
	Pool     model.Amount
	Balances map[model.Identity]model.Amount
	Totals   model.Totals
	LastSeq  int64
}

// Ledger is the single source of truth for who owns what, at what price.
type Ledger struct {
	mu       sync.Mutex
	cfg      Config
	items    []model.Item
	pool     model.Amount
	balances map[model.Identity]model.Amount
	totals   model.Totals
	seq      int64

	journal Journal
	hub     *Hub
	now     func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithJournal sets the collaborator every operation commits through.
func WithJournal(j Journal) Option {
	return func(l *Ledger) { l.journal = j }
}

// WithHub publishes committed events to h.
func WithHub(h *Hub) Option {
	return func(l *Ledger) { l.hub = h }
}

// WithClock overrides the time source used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func newLedger(cfg Config, opts []Option) *Ledger {
	l := &Ledger{
		cfg:      cfg,
		balances: make(map[model.Identity]model.Amount),
		journal:  Discard,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Initialize creates a ledger with one available item per price, each
// listed by the administrator. funding is the administrator's payment into
// the marketplace pool and must cover the sum of all prices.
func Initialize(ctx context.Context, cfg Config, prices []model.Amount, funding model.Amount, opts ...Option) (*Ledger, error) {
	if len(prices) == 0 {
		return nil, ErrNoItems
	}
	for i, p := range prices {
		if p == 0 {
			return nil, fmt.Errorf("%w: item %d has zero price", ErrInvalidPrice, i)
		}
	}
	total, err := model.AddAmounts(prices...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrice, err)
	}
	if funding < total {
		return nil, fmt.Errorf("%w: funding %s does not cover listed prices %s", ErrIncorrectPayment, funding, total)
	}

	l := newLedger(cfg, opts)

	at := l.now().UTC()
	items := make([]model.Item, len(prices))
	for i, p := range prices {
		items[i] = model.Listed(int64(i), cfg.Administrator, p)
		items[i].UpdatedAt = at
	}

	cfgCopy := cfg
	entry := Entry{
		Event: model.Event{
			Seq:       1,
			Kind:      model.EventInitialized,
			Price:     total,
			Actor:     cfg.Administrator,
			CreatedAt: at,
		},
		Items:       items,
		Payer:       cfg.Administrator,
		Inflow:      funding,
		Pool:        funding,
		RoyaltyRate: cfg.RoyaltyRate,
		Config:      &cfgCopy,
	}
	if err := l.journal.Commit(ctx, entry); err != nil {
		return nil, fmt.Errorf("committing initialization: %w", err)
	}

	l.items = items
	l.pool = funding
	l.seq = 1
	l.publish(entry.Event)
	return l, nil
}

// Restore rebuilds a ledger from a snapshot.
func Restore(snap Snapshot, opts ...Option) (*Ledger, error) {
	if len(snap.Items) == 0 {
		return nil, ErrNoItems
	}
	items := make([]model.Item, len(snap.Items))
	for i, it := range snap.Items {
		if it.ID != int64(i) {
			return nil, fmt.Errorf("restoring ledger: item at position %d has id %d", i, it.ID)
		}
		if it.Status != model.ItemStatusAvailable && it.Status != model.ItemStatusOwned {
			return nil, fmt.Errorf("restoring ledger: item %d has unknown status %q", i, it.Status)
		}
		if it.Available() && it.Price == 0 {
			return nil, fmt.Errorf("restoring ledger: %w: item %d is listed at zero", ErrInvalidPrice, i)
		}
		items[i] = it
	}

	l := newLedger(snap.Config, opts)
	l.items = items
	l.pool = snap.Pool
	l.totals = snap.Totals
	l.seq = snap.LastSeq
	for id, amount := range snap.Balances {
		l.balances[id] = amount
	}
	return l, nil
}

// UpdateRoyaltyFee replaces the royalty rate. Only the administrator may
// call it; any value is accepted.
func (l *Ledger) UpdateRoyaltyFee(ctx context.Context, caller model.Identity, fee model.Amount) (model.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.cfg.Administrator {
		return model.Event{}, fmt.Errorf("%w: %q is not the administrator", ErrUnauthorized, caller)
	}

	entry := Entry{
		Event:       l.nextEvent(model.EventRoyaltyUpdated, caller),
		Pool:        l.pool,
		RoyaltyRate: fee,
		Totals:      l.totals,
	}
	entry.Event.Price = fee

	if err := l.journal.Commit(ctx, entry); err != nil {
		return model.Event{}, fmt.Errorf("committing royalty update: %w", err)
	}

	l.cfg.RoyaltyRate = fee
	l.seq = entry.Event.Seq
	l.publish(entry.Event)
	return entry.Event, nil
}

// BuyItem transfers an available item to caller. payment must equal the
// asking price exactly. The previous seller receives the full price and the
// creator receives the royalty rate out of the pool.
func (l *Ledger) BuyItem(ctx context.Context, caller model.Identity, id int64, payment model.Amount) (model.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	item, err := l.lookup(id)
	if err != nil {
		return model.Event{}, err
	}
	seller, ok := item.Seller()
	if !ok {
		return model.Event{}, fmt.Errorf("%w: item %d is owned by %q", ErrItemUnavailable, id, item.Holder)
	}
	if payment != item.Price {
		return model.Event{}, fmt.Errorf("%w: item %d costs %s, got %s", ErrIncorrectPayment, id, item.Price, payment)
	}

	royalty := l.cfg.RoyaltyRate
	funds, err := model.AddAmounts(l.pool, payment)
	if err != nil {
		return model.Event{}, fmt.Errorf("%w: %v", ErrIncorrectPayment, err)
	}
	outflow, err := model.AddAmounts(item.Price, royalty)
	if err != nil || funds < outflow {
		return model.Event{}, fmt.Errorf("%w: pool %s cannot cover royalty %s", ErrInsufficientFunds, l.pool, royalty)
	}

	event := l.nextEvent(model.EventSold, caller)
	event.ItemID = &item.ID
	event.Seller = seller
	event.Buyer = caller
	event.Price = item.Price

	sold := item.OwnedBy(caller)
	sold.UpdatedAt = event.CreatedAt

	payments := []model.Payment{
		{EventSeq: event.Seq, Recipient: seller, Amount: item.Price, Memo: model.MemoSaleProceeds},
	}
	if royalty > 0 {
		payments = append(payments, model.Payment{
			EventSeq: event.Seq, Recipient: l.cfg.Creator, Amount: royalty, Memo: model.MemoRoyalty,
		})
	}

	totals := l.totals
	totals.Sales++
	if totals.Volume, err = model.AddAmounts(totals.Volume, item.Price); err != nil {
		return model.Event{}, fmt.Errorf("%w: sales volume", ErrOverflow)
	}
	if totals.RoyaltiesPaid, err = model.AddAmounts(totals.RoyaltiesPaid, royalty); err != nil {
		return model.Event{}, fmt.Errorf("%w: royalties paid", ErrOverflow)
	}

	credited := make(map[model.Identity]model.Amount, len(payments))
	for _, p := range payments {
		balance, ok := credited[p.Recipient]
		if !ok {
			balance = l.balances[p.Recipient]
		}
		if credited[p.Recipient], err = model.AddAmounts(balance, p.Amount); err != nil {
			return model.Event{}, fmt.Errorf("%w: balance of %q", ErrOverflow, p.Recipient)
		}
	}

	entry := Entry{
		Event:       event,
		Items:       []model.Item{sold},
		Payments:    payments,
		Payer:       caller,
		Inflow:      payment,
		Pool:        funds - outflow,
		RoyaltyRate: royalty,
		Totals:      totals,
	}
	if err := l.journal.Commit(ctx, entry); err != nil {
		return model.Event{}, fmt.Errorf("committing sale: %w", err)
	}

	l.items[id] = sold
	l.pool = entry.Pool
	l.totals = totals
	for id, balance := range credited {
		l.balances[id] = balance
	}
	l.seq = event.Seq
	l.publish(event)
	return event, nil
}

// RelistItem puts an owned item back up for sale at newPrice. Only the
// current owner may relist, and royaltyPayment must equal the royalty rate
// exactly. The royalty payment stays in the pool.
func (l *Ledger) RelistItem(ctx context.Context, caller model.Identity, id int64, newPrice, royaltyPayment model.Amount) (model.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	item, err := l.lookup(id)
	if err != nil {
		return model.Event{}, err
	}
	if owner, ok := item.Owner(); !ok || owner != caller {
		return model.Event{}, fmt.Errorf("%w: %q does not own item %d", ErrUnauthorized, caller, id)
	}
	if newPrice == 0 {
		return model.Event{}, fmt.Errorf("%w: price must be positive", ErrInvalidPrice)
	}
	if royaltyPayment != l.cfg.RoyaltyRate {
		return model.Event{}, fmt.Errorf("%w: royalty is %s, got %s", ErrRoyaltyRequired, l.cfg.RoyaltyRate, royaltyPayment)
	}
	pool, err := model.AddAmounts(l.pool, royaltyPayment)
	if err != nil {
		return model.Event{}, fmt.Errorf("%w: %v", ErrRoyaltyRequired, err)
	}

	event := l.nextEvent(model.EventRelisted, caller)
	event.ItemID = &item.ID
	event.Seller = caller
	event.Price = newPrice

	listed := model.Listed(id, caller, newPrice)
	listed.UpdatedAt = event.CreatedAt

	entry := Entry{
		Event:       event,
		Items:       []model.Item{listed},
		Payer:       caller,
		Inflow:      royaltyPayment,
		Pool:        pool,
		RoyaltyRate: l.cfg.RoyaltyRate,
		Totals:      l.totals,
	}
	if err := l.journal.Commit(ctx, entry); err != nil {
		return model.Event{}, fmt.Errorf("committing relisting: %w", err)
	}

	l.items[id] = listed
	l.pool = pool
	l.seq = event.Seq
	l.publish(event)
	return event, nil
}

// UnsoldItems yields, in ascending id order, the items available for
// purchase when UnsoldItems was called.
func (l *Ledger) UnsoldItems() iter.Seq[model.Item] {
	return filter(l.itemsSnapshot(), func(it model.Item) bool {
		return it.Available()
	})
}

// OwnedItems yields, in ascending id order, the items owned by owner when
// OwnedItems was called.
func (l *Ledger) OwnedItems(owner model.Identity) iter.Seq[model.Item] {
	return filter(l.itemsSnapshot(), func(it model.Item) bool {
		o, ok := it.Owner()
		return ok && o == owner
	})
}

// Items yields every item in ascending id order.
func (l *Ledger) Items() iter.Seq[model.Item] {
	return filter(l.itemsSnapshot(), func(model.Item) bool { return true })
}

// Item returns the item with the given id.
func (l *Ledger) Item(id int64) (model.Item, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lookup(id)
}

// ItemURI returns the metadata locator for an item: the shared base URI
// followed by the item id.
func (l *Ledger) ItemURI(id int64) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.lookup(id); err != nil {
		return "", err
	}
	return l.cfg.BaseURI + strconv.FormatInt(id, 10), nil
}

// ItemCount returns the fixed number of items.
func (l *Ledger) ItemCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Config returns the current marketplace configuration.
func (l *Ledger) Config() Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg
}

// RoyaltyRate returns the current royalty rate.
func (l *Ledger) RoyaltyRate() model.Amount {
	return l.Config().RoyaltyRate
}

// Administrator returns the identity allowed to change the royalty rate.
func (l *Ledger) Administrator() model.Identity {
	return l.Config().Administrator
}

// Creator returns the identity that receives royalties.
func (l *Ledger) Creator() model.Identity {
	return l.Config().Creator
}

// BaseURI returns the shared metadata locator.
func (l *Ledger) BaseURI() string {
	return l.Config().BaseURI
}

// Balance returns the total paid out to id.
func (l *Ledger) Balance(id model.Identity) model.Amount {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[id]
}

// Pool returns the currency held by the marketplace.
func (l *Ledger) Pool() model.Amount {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pool
}

// Totals returns the monotonic sale counters.
func (l *Ledger) Totals() model.Totals {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totals
}

// Snapshot returns a copy of the whole ledger state.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	balances := make(map[model.Identity]model.Amount, len(l.balances))
	for id, amount := range l.balances {
		balances[id] = amount
	}
	return Snapshot{
		Config:   l.cfg,
		Items:    append([]model.Item(nil), l.items...),
		Pool:     l.pool,
		Balances: balances,
		Totals:   l.totals,
		LastSeq:  l.seq,
	}
}

// lookup must be called with l.mu held.
func (l *Ledger) lookup(id int64) (model.Item, error) {
	if id < 0 || id >= int64(len(l.items)) {
		return model.Item{}, fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, id, len(l.items))
	}
	return l.items[id], nil
}

// nextEvent must be called with l.mu held. The sequence number is only
// consumed once the entry commits.
func (l *Ledger) nextEvent(kind string, actor model.Identity) model.Event {
	return model.Event{
		Seq:       l.seq + 1,
		Kind:      kind,
		Actor:     actor,
		CreatedAt: l.now().UTC(),
	}
}

func (l *Ledger) itemsSnapshot() []model.Item {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.Item(nil), l.items...)
}

func (l *Ledger) publish(e model.Event) {
	if l.hub != nil {
		l.hub.Publish(e)
	}
}

func filter(items []model.Item, keep func(model.Item) bool) iter.Seq[model.Item] {
	return func(yield func(model.Item) bool) {
		for _, it := range items {
			if keep(it) && !yield(it) {
				return
			}
		}
	}
}
