package ledger

import (
	"context"

	"github.com/erazemk/galerija/internal/model"
)

// Entry is everything a single committed operation changes.
type Entry struct {
	Event model.Event

	// Items holds the new state of every item the operation touched.
	Items []model.Item

	// Payments are outflows from the pool.
	Payments []model.Payment

	// Payer sent Inflow into the pool as part of the operation.
	Payer  model.Identity
	Inflow model.Amount

	// Resulting marketplace-level state.
	Pool        model.Amount
	RoyaltyRate model.Amount
	Totals      model.Totals

	// Config is set only for the initializing entry.
	Config *Config
}

// Journal is the value-transfer and persistence collaborator. Commit must
// apply the whole entry or nothing; a returned error rolls the operation
// back.
type Journal interface {
	Commit(ctx context.Context, e Entry) error
}

// JournalFunc adapts a function to the Journal interface.
type JournalFunc func(ctx context.Context, e Entry) error

// Commit calls f(ctx, e).
func (f JournalFunc) Commit(ctx context.Context, e Entry) error {
	return f(ctx, e)
}

// Discard is a Journal that accepts every entry and keeps nothing.
var Discard Journal = JournalFunc(func(context.Context, Entry) error { return nil })
