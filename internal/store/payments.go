package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/galerija/internal/model"
)

// ListPayments returns payments to recipient, newest first.
func ListPayments(ctx context.Context, db *sql.DB, recipient model.Identity) ([]model.Payment, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, event_seq, recipient, amount, memo
		 FROM payments WHERE recipient = ? ORDER BY id DESC`, string(recipient),
	)
	if err != nil {
		return nil, fmt.Errorf("listing payments: %w", err)
	}
	defer rows.Close()

	var payments []model.Payment
	for rows.Next() {
		var p model.Payment
		var to string
		var amount int64
		var memo sql.NullString
		if err := rows.Scan(&p.ID, &p.EventSeq, &to, &amount, &memo); err != nil {
			return nil, fmt.Errorf("scanning payment: %w", err)
		}
		p.Recipient = model.Identity(to)
		p.Amount = model.Amount(amount)
		p.Memo = memo.String
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// GetBalance returns the total paid to recipient.
func GetBalance(ctx context.Context, db *sql.DB, recipient model.Identity) (model.Amount, error) {
	var sum int64
	err := db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM payments WHERE recipient = ?`, string(recipient),
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("getting balance: %w", err)
	}
	return model.Amount(sum), nil
}
