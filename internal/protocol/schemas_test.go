package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"aisociety.ai/internal/economy/market"
	"aisociety.ai/internal/economy/resource"
	"aisociety.ai/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	// Marshal the Go message and validate the resulting JSON, so the
	// structs and schemas cannot drift apart.
	validate := func(s *jsonschema.Schema, msg any) {
		t.Helper()
		b, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var v any
		if err := json.Unmarshal(b, &v); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate: %v\n%s", err, b)
		}
	}

	helloSchema := compile("hello.schema.json")
	welcomeSchema := compile("welcome.schema.json")
	eventSchema := compile("market_event.schema.json")
	errorSchema := compile("error.schema.json")

	validate(helloSchema, protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      "observer-1",
		Kinds:           []string{"wood", "gold"},
	})

	validate(welcomeSchema, protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		FeedID:          "feed_1",
		Stats: protocol.FromStats(market.Stats{
			ActiveOffers:     2,
			TotalTrades:      7,
			TotalVolume:      420,
			TotalFees:        4.2,
			TrackedResources: 3,
			PricingStrategy:  "supply_demand(moderate)",
		}),
	})

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	expires := now.Add(time.Hour)
	offer := market.Offer{
		ID:               "o1",
		SellerID:         "s1",
		Kind:             resource.Wood,
		Quantity:         6,
		OriginalQuantity: 10,
		PricePerUnit:     5,
		MinQuantity:      1,
		CreatedAt:        now,
		ExpiresAt:        expires,
		Status:           market.StatusPartial,
	}
	validate(eventSchema, protocol.FromMarketEvent(market.Event{
		Type:  market.EventOfferCreated,
		At:    now,
		Kind:  resource.Wood,
		Offer: &offer,
	}))

	validate(eventSchema, protocol.FromMarketEvent(market.Event{
		Type:  market.EventTradeCompleted,
		At:    now,
		Kind:  resource.Wood,
		Offer: &offer,
		Trade: &market.Record{
			ID:           "t1",
			OfferID:      "o1",
			SellerID:     "s1",
			BuyerID:      "b1",
			Kind:         resource.Wood,
			Quantity:     4,
			PricePerUnit: 5,
			Total:        20,
			Fee:          0.2,
			At:           now,
		},
	}))

	validate(eventSchema, protocol.FromMarketEvent(market.Event{
		Type:        market.EventPriceChanged,
		At:          now,
		OldStrategy: "fixed",
		NewStrategy: "supply_demand(moderate)",
	}))

	validate(errorSchema, protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            protocol.ErrProtoBadRequest,
		Message:         "first message must be HELLO",
	})
}
