package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/galerija/internal/model"
)

const eventColumns = `seq, kind, item_id, seller, buyer, price, actor, created_at`

// ListEvents returns events newest first, optionally filtered by item.
// A limit of zero returns every event.
func ListEvents(ctx context.Context, db *sql.DB, itemID *int64, limit int) ([]model.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE 1=1`
	var args []any

	if itemID != nil {
		query += ` AND item_id = ?`
		args = append(args, *itemID)
	}

	query += ` ORDER BY seq DESC`

	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetItemHistory returns sale and relisting events for an item, newest first.
func GetItemHistory(ctx context.Context, db *sql.DB, itemID int64) ([]model.Event, error) {
	events, err := ListEvents(ctx, db, &itemID, 0)
	if err != nil {
		return nil, fmt.Errorf("getting item history: %w", err)
	}
	return events, nil
}

func scanEvents(rows *sql.Rows) ([]model.Event, error) {
	var events []model.Event
	for rows.Next() {
		var e model.Event
		var itemID sql.NullInt64
		var seller, buyer sql.NullString
		var price int64
		var actor string
		if err := rows.Scan(&e.Seq, &e.Kind, &itemID, &seller, &buyer, &price, &actor, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		if itemID.Valid {
			id := itemID.Int64
			e.ItemID = &id
		}
		e.Seller = model.Identity(seller.String)
		e.Buyer = model.Identity(buyer.String)
		e.Price = model.Amount(price)
		e.Actor = model.Identity(actor)
		events = append(events, e)
	}
	return events, rows.Err()
}
