package protocol

import (
	"time"

	"aisociety.ai/internal/economy/market"
)

// HELLO (client -> server)
type HelloMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	ClientName      string   `json:"client_name,omitempty"`
	Kinds           []string `json:"kinds,omitempty"` // empty = all resource kinds
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	FeedID          string    `json:"feed_id"`
	Stats           StatsWire `json:"stats"`
}

// MARKET_EVENT (server -> client)
type MarketEventMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Event           string     `json:"event"`
	At              time.Time  `json:"at"`
	Kind            string     `json:"kind,omitempty"`
	Offer           *OfferWire `json:"offer,omitempty"`
	Trade           *TradeWire `json:"trade,omitempty"`
	OldStrategy     string     `json:"old_strategy,omitempty"`
	NewStrategy     string     `json:"new_strategy,omitempty"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}

type OfferWire struct {
	ID               string     `json:"id"`
	SellerID         string     `json:"seller_id"`
	Kind             string     `json:"kind"`
	Quantity         float64    `json:"quantity"`
	OriginalQuantity float64    `json:"original_quantity"`
	PricePerUnit     float64    `json:"price_per_unit"`
	MinQuantity      float64    `json:"min_quantity,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	Status           string     `json:"status"`
}

type TradeWire struct {
	ID           string    `json:"id"`
	OfferID      string    `json:"offer_id"`
	SellerID     string    `json:"seller_id"`
	BuyerID      string    `json:"buyer_id"`
	Kind         string    `json:"kind"`
	Quantity     float64   `json:"quantity"`
	PricePerUnit float64   `json:"price_per_unit"`
	Total        float64   `json:"total"`
	Fee          float64   `json:"fee,omitempty"`
	At           time.Time `json:"at"`
}

type StatsWire struct {
	ActiveOffers     int     `json:"active_offers"`
	TotalTrades      int     `json:"total_trades"`
	TotalVolume      float64 `json:"total_volume"`
	TotalFees        float64 `json:"total_fees"`
	TrackedResources int     `json:"tracked_resources"`
	PricingStrategy  string  `json:"pricing_strategy"`
}

// FromMarketEvent flattens a marketplace event into its wire form.
func FromMarketEvent(evt market.Event) MarketEventMsg {
	msg := MarketEventMsg{
		Type:            TypeMarketEvent,
		ProtocolVersion: Version,
		Event:           string(evt.Type),
		At:              evt.At,
		Kind:            string(evt.Kind),
		OldStrategy:     evt.OldStrategy,
		NewStrategy:     evt.NewStrategy,
	}
	if evt.Offer != nil {
		msg.Offer = fromOffer(*evt.Offer)
	}
	if evt.Trade != nil {
		msg.Trade = fromTrade(*evt.Trade)
	}
	return msg
}

// FromStats converts a marketplace snapshot into its wire form.
func FromStats(stats market.Stats) StatsWire {
	return StatsWire{
		ActiveOffers:     stats.ActiveOffers,
		TotalTrades:      stats.TotalTrades,
		TotalVolume:      stats.TotalVolume,
		TotalFees:        stats.TotalFees,
		TrackedResources: stats.TrackedResources,
		PricingStrategy:  stats.PricingStrategy,
	}
}

func fromOffer(o market.Offer) *OfferWire {
	w := &OfferWire{
		ID:               o.ID,
		SellerID:         o.SellerID,
		Kind:             string(o.Kind),
		Quantity:         o.Quantity,
		OriginalQuantity: o.OriginalQuantity,
		PricePerUnit:     o.PricePerUnit,
		MinQuantity:      o.MinQuantity,
		CreatedAt:        o.CreatedAt,
		Status:           string(o.Status),
	}
	if !o.ExpiresAt.IsZero() {
		expires := o.ExpiresAt
		w.ExpiresAt = &expires
	}
	return w
}

func fromTrade(rec market.Record) *TradeWire {
	return &TradeWire{
		ID:           rec.ID,
		OfferID:      rec.OfferID,
		SellerID:     rec.SellerID,
		BuyerID:      rec.BuyerID,
		Kind:         string(rec.Kind),
		Quantity:     rec.Quantity,
		PricePerUnit: rec.PricePerUnit,
		Total:        rec.Total,
		Fee:          rec.Fee,
		At:           rec.At,
	}
}
