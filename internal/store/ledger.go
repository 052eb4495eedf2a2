package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/galerija/internal/ledger"
	"github.com/erazemk/galerija/internal/model"
)

// MarketplaceInfo is the persisted marketplace row.
type MarketplaceInfo struct {
	Config  ledger.Config
	Funding model.Amount
	Pool    model.Amount
	Totals  model.Totals
}

// GetMarketplace returns the marketplace row, or nil if the marketplace has
// not been initialized.
func GetMarketplace(ctx context.Context, db *sql.DB) (*MarketplaceInfo, error) {
	var info MarketplaceInfo
	var admin, creator string
	var royalty, funding, pool, volume, paid int64
	err := db.QueryRowContext(ctx,
		`SELECT administrator, creator, royalty_rate, base_uri, funding, pool, sales, volume, royalties_paid
		 FROM marketplace WHERE id = 1`,
	).Scan(&admin, &creator, &royalty, &info.Config.BaseURI, &funding, &pool, &info.Totals.Sales, &volume, &paid)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting marketplace: %w", err)
	}
	info.Config.Administrator = model.Identity(admin)
	info.Config.Creator = model.Identity(creator)
	info.Config.RoyaltyRate = model.Amount(royalty)
	info.Funding = model.Amount(funding)
	info.Pool = model.Amount(pool)
	info.Totals.Volume = model.Amount(volume)
	info.Totals.RoyaltiesPaid = model.Amount(paid)
	return &info, nil
}

// ListItems returns every item ordered by id.
func ListItems(ctx context.Context, db *sql.DB) ([]model.Item, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, price, status, holder, updated_at FROM items ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		var it model.Item
		var price int64
		var holder string
		if err := rows.Scan(&it.ID, &price, &it.Status, &holder, &it.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		it.Price = model.Amount(price)
		it.Holder = model.Identity(holder)
		items = append(items, it)
	}
	return items, rows.Err()
}

// ListBalances returns the total paid to every recipient.
func ListBalances(ctx context.Context, db *sql.DB) (map[model.Identity]model.Amount, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT recipient, SUM(amount) FROM payments GROUP BY recipient`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing balances: %w", err)
	}
	defer rows.Close()

	balances := make(map[model.Identity]model.Amount)
	for rows.Next() {
		var recipient string
		var sum int64
		if err := rows.Scan(&recipient, &sum); err != nil {
			return nil, fmt.Errorf("scanning balance: %w", err)
		}
		balances[model.Identity(recipient)] = model.Amount(sum)
	}
	return balances, rows.Err()
}

// LoadSnapshot reads the whole persisted ledger. It returns nil if the
// marketplace has not been initialized.
func LoadSnapshot(ctx context.Context, db *sql.DB) (*ledger.Snapshot, error) {
	info, err := GetMarketplace(ctx, db)
	if err != nil || info == nil {
		return nil, err
	}

	items, err := ListItems(ctx, db)
	if err != nil {
		return nil, err
	}

	balances, err := ListBalances(ctx, db)
	if err != nil {
		return nil, err
	}

	var lastSeq int64
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM events`).Scan(&lastSeq); err != nil {
		return nil, fmt.Errorf("getting last event: %w", err)
	}

	return &ledger.Snapshot{
		Config:   info.Config,
		Items:    items,
		Pool:     info.Pool,
		Balances: balances,
		Totals:   info.Totals,
		LastSeq:  lastSeq,
	}, nil
}

// OpenLedger restores the persisted ledger and wires it to commit through
// db. It returns nil if the marketplace has not been initialized.
func OpenLedger(ctx context.Context, db *sql.DB, opts ...ledger.Option) (*ledger.Ledger, error) {
	snap, err := LoadSnapshot(ctx, db)
	if err != nil || snap == nil {
		return nil, err
	}

	opts = append([]ledger.Option{ledger.WithJournal(NewJournal(db))}, opts...)
	l, err := ledger.Restore(*snap, opts...)
	if err != nil {
		return nil, fmt.Errorf("restoring ledger: %w", err)
	}
	return l, nil
}

// InitializeLedger creates the marketplace and persists it to db.
func InitializeLedger(ctx context.Context, db *sql.DB, cfg ledger.Config, prices []model.Amount, funding model.Amount, opts ...ledger.Option) (*ledger.Ledger, error) {
	opts = append([]ledger.Option{ledger.WithJournal(NewJournal(db))}, opts...)
	return ledger.Initialize(ctx, cfg, prices, funding, opts...)
}
