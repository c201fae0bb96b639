// Package market implements the marketplace: sell offers, partial
// fills, expiry, pricing hooks and trade history.
package market

import (
	"time"

	"aisociety.ai/internal/economy/resource"
)

// Status is an offer's lifecycle state. Pending and Partial offers are
// live; the other states are terminal and never change again.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPartial   Status = "partial"
	StatusAccepted  Status = "accepted"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Offer is one seller's listing. Quantity is what remains for sale;
// fills reduce it toward zero.
type Offer struct {
	ID               string
	SellerID         string
	Kind             resource.Kind
	Quantity         float64
	OriginalQuantity float64
	PricePerUnit     float64
	MinQuantity      float64 // smallest fill a buyer may take, 0 = any
	CreatedAt        time.Time
	ExpiresAt        time.Time // zero = never expires
	Status           Status
}

// ActiveAt reports whether the offer can be filled at the given time.
// An expired offer stops being active before cleanup marks it.
func (o Offer) ActiveAt(now time.Time) bool {
	if o.Status != StatusPending && o.Status != StatusPartial {
		return false
	}
	if o.ExpiresAt.IsZero() {
		return true
	}
	return now.Before(o.ExpiresAt)
}

// TotalValue is the remaining quantity at the asking price.
func (o Offer) TotalValue() float64 { return o.Quantity * o.PricePerUnit }

// Record is one completed trade.
type Record struct {
	ID           string
	OfferID      string
	SellerID     string
	BuyerID      string
	Kind         resource.Kind
	Quantity     float64
	PricePerUnit float64
	Total        float64
	Fee          float64 // market's cut of Total, charged to the seller
	At           time.Time
}
