package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/erazemk/galerija/internal/ledger"
	"github.com/erazemk/galerija/internal/model"
)

// NewJournal returns a ledger.Journal that persists every committed entry
// to db.
func NewJournal(db *sql.DB) ledger.Journal {
	return ledger.JournalFunc(func(ctx context.Context, e ledger.Entry) error {
		return CommitEntry(ctx, db, e)
	})
}

// CommitEntry writes a ledger entry in a single transaction: marketplace
// state, changed items, the event and its payments.
func CommitEntry(ctx context.Context, db *sql.DB, e ledger.Entry) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if e.Config != nil {
		err = insertMarketplace(ctx, tx, e)
	} else {
		err = updateMarketplace(ctx, tx, e)
	}
	if err != nil {
		return err
	}

	for _, it := range e.Items {
		price, err := dbAmount(it.Price)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO items (id, price, status, holder, updated_at) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (id) DO UPDATE SET price = excluded.price, status = excluded.status,
			     holder = excluded.holder, updated_at = excluded.updated_at`,
			it.ID, price, it.Status, string(it.Holder), it.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("writing item %d: %w", it.ID, err)
		}
	}

	price, err := dbAmount(e.Event.Price)
	if err != nil {
		return err
	}
	inflow, err := dbAmount(e.Inflow)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO events (seq, kind, item_id, seller, buyer, price, actor, payer, inflow, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Event.Seq, e.Event.Kind, e.Event.ItemID, nullIdentity(e.Event.Seller), nullIdentity(e.Event.Buyer),
		price, string(e.Event.Actor), nullIdentity(e.Payer), inflow, e.Event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("recording event: %w", err)
	}

	for _, p := range e.Payments {
		amount, err := dbAmount(p.Amount)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO payments (event_seq, recipient, amount, memo) VALUES (?, ?, ?, ?)`,
			e.Event.Seq, string(p.Recipient), amount, p.Memo,
		)
		if err != nil {
			return fmt.Errorf("recording payment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing entry: %w", err)
	}
	return nil
}

func insertMarketplace(ctx context.Context, tx *sql.Tx, e ledger.Entry) error {
	royalty, err := dbAmount(e.RoyaltyRate)
	if err != nil {
		return err
	}
	pool, err := dbAmount(e.Pool)
	if err != nil {
		return err
	}
	funding, err := dbAmount(e.Inflow)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO marketplace (id, administrator, creator, royalty_rate, base_uri, funding, pool)
		 VALUES (1, ?, ?, ?, ?, ?, ?)`,
		string(e.Config.Administrator), string(e.Config.Creator), royalty, e.Config.BaseURI, funding, pool,
	)
	if err != nil {
		return fmt.Errorf("creating marketplace: %w", err)
	}
	return nil
}

func updateMarketplace(ctx context.Context, tx *sql.Tx, e ledger.Entry) error {
	royalty, err := dbAmount(e.RoyaltyRate)
	if err != nil {
		return err
	}
	pool, err := dbAmount(e.Pool)
	if err != nil {
		return err
	}
	volume, err := dbAmount(e.Totals.Volume)
	if err != nil {
		return err
	}
	paid, err := dbAmount(e.Totals.RoyaltiesPaid)
	if err != nil {
		return err
	}
	result, err := tx.ExecContext(ctx,
		`UPDATE marketplace SET royalty_rate = ?, pool = ?, sales = ?, volume = ?, royalties_paid = ?
		 WHERE id = 1`,
		royalty, pool, e.Totals.Sales, volume, paid,
	)
	if err != nil {
		return fmt.Errorf("updating marketplace: %w", err)
	}
	if n, _ := result.RowsAffected(); n != 1 {
		return fmt.Errorf("updating marketplace: marketplace not initialized")
	}
	return nil
}

// dbAmount converts an amount to the signed integer SQLite stores.
func dbAmount(a model.Amount) (int64, error) {
	if uint64(a) > math.MaxInt64 {
		return 0, fmt.Errorf("amount %s exceeds storage range", a)
	}
	return int64(a), nil
}

func nullIdentity(id model.Identity) sql.NullString {
	return sql.NullString{String: string(id), Valid: id != ""}
}
