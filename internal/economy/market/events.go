package market

import (
	"time"

	"aisociety.ai/internal/economy/resource"
)

// EventType labels a marketplace notification.
type EventType string

const (
	EventOfferCreated   EventType = "offer_created"
	EventOfferCancelled EventType = "offer_cancelled"
	EventOfferExpired   EventType = "offer_expired"
	EventTradeCompleted EventType = "trade_completed"
	EventPriceChanged   EventType = "price_changed"
)

// Event is one marketplace notification. Offer and Trade are snapshots;
// observers may retain them. Only the fields relevant to the type are
// set.
type Event struct {
	Type EventType
	At   time.Time
	Kind resource.Kind

	Offer *Offer
	Trade *Record

	// EventPriceChanged only.
	OldStrategy string
	NewStrategy string
}

// Observer receives marketplace events. Observers run while the
// marketplace lock is held: they must return quickly and must not call
// back into the marketplace. A panicking observer is isolated; the
// others still run.
type Observer interface {
	OnMarketEvent(evt Event)
}
