package model

import "time"

// Identity is an opaque, comparable caller identity. It is supplied by the
// authentication layer and never verified by the ledger.
type Identity string

// Item is a single unit of the marketplace's fixed collection.
//
// Status selects the meaning of Holder: an available item is listed and
// Holder is the seller the next sale pays; an owned item is held
// externally and Holder is its owner.
type Item struct {
	ID        int64     `json:"id"`
	Price     Amount    `json:"price"`
	Status    string    `json:"status"`
	Holder    Identity  `json:"holder"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Item statuses.
const (
	ItemStatusAvailable = "available"
	ItemStatusOwned     = "owned"
)

// Available reports whether the item is listed for purchase.
func (i Item) Available() bool {
	return i.Status == ItemStatusAvailable
}

// Seller returns the identity paid by the next sale, if the item is listed.
func (i Item) Seller() (Identity, bool) {
	if i.Status != ItemStatusAvailable {
		return "", false
	}
	return i.Holder, true
}

// Owner returns the external owner, if the item has been bought.
func (i Item) Owner() (Identity, bool) {
	if i.Status != ItemStatusOwned {
		return "", false
	}
	return i.Holder, true
}

// Listed returns an item available for purchase from seller at price.
func Listed(id int64, seller Identity, price Amount) Item {
	return Item{ID: id, Price: price, Status: ItemStatusAvailable, Holder: seller}
}

// OwnedBy returns the item held by owner, keeping its last price.
func (i Item) OwnedBy(owner Identity) Item {
	i.Status = ItemStatusOwned
	i.Holder = owner
	return i
}
