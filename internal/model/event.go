package model

import "time"

// Event kinds.
const (
	EventInitialized    = "initialized"
	EventSold           = "sold"
	EventRelisted       = "relisted"
	EventRoyaltyUpdated = "royalty_updated"
)

// Event is a committed ledger transition.
//
// For sold events Seller is the previous seller and Buyer the new owner.
// For relisted events Seller is the relisting owner and Price the new
// asking price. For royalty_updated events Price is the new royalty rate.
type Event struct {
	Seq       int64     `json:"seq"`
	Kind      string    `json:"kind"`
	ItemID    *int64    `json:"item_id,omitempty"`
	Seller    Identity  `json:"seller,omitempty"`
	Buyer     Identity  `json:"buyer,omitempty"`
	Price     Amount    `json:"price"`
	Actor     Identity  `json:"actor"`
	CreatedAt time.Time `json:"created_at"`
}

// Payment is an outflow from the marketplace pool.
type Payment struct {
	ID        int64    `json:"id,omitempty"`
	EventSeq  int64    `json:"event_seq"`
	Recipient Identity `json:"recipient"`
	Amount    Amount   `json:"amount"`
	Memo      string   `json:"memo,omitempty"`
}

// Payment memos.
const (
	MemoSaleProceeds = "sale proceeds"
	MemoRoyalty      = "royalty"
)

// Totals are monotonic marketplace counters.
type Totals struct {
	Sales         int64  `json:"sales"`
	Volume        Amount `json:"volume"`
	RoyaltiesPaid Amount `json:"royalties_paid"`
}
