package market

import (
	"errors"
	"testing"
	"time"

	"aisociety.ai/internal/economy/pricing"
	"aisociety.ai/internal/economy/resource"
)

type eventRecorder struct {
	events []Event
}

func (r *eventRecorder) OnMarketEvent(evt Event) { r.events = append(r.events, evt) }

type panicObserver struct{}

func (panicObserver) OnMarketEvent(Event) { panic("bad observer") }

func newTestMarket(cfg Config) (*Marketplace, *time.Time) {
	m := New(cfg, nil, nil)
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return current }
	return m, &current
}

func TestCreateOfferListsSupply(t *testing.T) {
	m, _ := newTestMarket(DefaultConfig())
	o, err := m.CreateOffer(OfferRequest{SellerID: "s", Kind: resource.Wood, Quantity: 10, PricePerUnit: 5})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if o.ID == "" || o.Status != StatusPending {
		t.Fatalf("offer: got %+v", o)
	}
	if o.OriginalQuantity != 10 || o.Quantity != 10 {
		t.Fatalf("quantities: got %+v", o)
	}
	if supply, _ := m.SupplyDemand(resource.Wood); supply != 10 {
		t.Fatalf("supply: got %v want 10", supply)
	}
	if got, ok := m.Offer(o.ID); !ok || got.ID != o.ID {
		t.Fatalf("lookup: got %+v/%v", got, ok)
	}
}

func TestCreateOfferRejectsTinyQuantity(t *testing.T) {
	m, _ := newTestMarket(DefaultConfig())
	if _, err := m.CreateOffer(OfferRequest{SellerID: "s", Kind: resource.Wood, Quantity: 0.05}); !errors.Is(err, ErrOfferTooSmall) {
		t.Fatalf("error: got %v", err)
	}
	if _, err := m.CreateOffer(OfferRequest{SellerID: "s", Kind: resource.Wood, Quantity: 0}); !errors.Is(err, ErrOfferTooSmall) {
		t.Fatalf("zero quantity: got %v", err)
	}
}

func TestCreateOfferDerivesPriceFromStrategy(t *testing.T) {
	m, _ := newTestMarket(DefaultConfig())
	// Balanced market: the strategy returns the base price.
	o, err := m.CreateOffer(OfferRequest{SellerID: "s", Kind: resource.Stone, Quantity: 5})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if o.PricePerUnit != 12 {
		t.Fatalf("derived price: got %v want 12", o.PricePerUnit)
	}
	// Unknown kinds fall back to the default base price.
	o2, err := m.CreateOffer(OfferRequest{SellerID: "s", Kind: resource.Kind("obsidian"), Quantity: 5})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if o2.PricePerUnit != 10 {
		t.Fatalf("fallback price: got %v want 10", o2.PricePerUnit)
	}
}

func TestSellerActiveOfferLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxActiveOffers = 2
	m, _ := newTestMarket(cfg)

	first, _ := m.CreateOffer(OfferRequest{SellerID: "s", Kind: resource.Wood, Quantity: 1, PricePerUnit: 5})
	m.CreateOffer(OfferRequest{SellerID: "s", Kind: resource.Wood, Quantity: 1, PricePerUnit: 5})
	if _, err := m.CreateOffer(OfferRequest{SellerID: "s", Kind: resource.Wood, Quantity: 1, PricePerUnit: 5}); !errors.Is(err, ErrSellerOverLimit) {
		t.Fatalf("third offer: got %v", err)
	}
	// Other sellers are unaffected.
	if _, err := m.CreateOffer(OfferRequest{SellerID: "other", Kind: resource.Wood, Quantity: 1, PricePerUnit: 5}); err != nil {
		t.Fatalf("other seller: %v", err)
	}
	// Cancelling frees a slot.
	if err := m.CancelOffer(first.ID, "s"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := m.CreateOffer(OfferRequest{SellerID: "s", Kind: resource.Wood, Quantity: 1, PricePerUnit: 5}); err != nil {
		t.Fatalf("after cancel: %v", err)
	}
}

func TestAcceptOfferFullFill(t *testing.T) {
	m, _ := newTestMarket(DefaultConfig())
	o, _ := m.CreateOffer(OfferRequest{SellerID: "s", Kind: resource.Wood, Quantity: 10, PricePerUnit: 5})

	rec, err := m.AcceptOffer(o.ID, "b", 0)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if rec.Quantity != 10 || rec.Total != 50 || rec.PricePerUnit != 5 {
		t.Fatalf("record: got %+v", rec)
	}
	if rec.SellerID != "s" || rec.BuyerID != "b" {
		t.Fatalf("parties: got %+v", rec)
	}
	// Fully accepted offers leave the book.
	if _, ok := m.Offer(o.ID); ok {
		t.Fatalf("accepted offer still listed")
	}
	if supply, _ := m.SupplyDemand(resource.Wood); supply != 0 {
		t.Fatalf("supply: got %v want 0", supply)
	}
	if _, err := m.AcceptOffer(o.ID, "b", 1); !errors.Is(err, ErrOfferNotFound) {
		t.Fatalf("second accept: got %v", err)
	}
}

func TestAcceptOfferPartialFill(t *testing.T) {
	m, _ := newTestMarket(DefaultConfig())
	o, _ := m.CreateOffer(OfferRequest{SellerID: "s", Kind: resource.Wood, Quantity: 10, PricePerUnit: 5})

	rec, err := m.AcceptOffer(o.ID, "b", 4)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if rec.Quantity != 4 || rec.Total != 20 {
		t.Fatalf("record: got %+v", rec)
	}
	got, ok := m.Offer(o.ID)
	if !ok || got.Status != StatusPartial || got.Quantity != 6 {
		t.Fatalf("remaining offer: got %+v/%v", got, ok)
	}
	if supply, _ := m.SupplyDemand(resource.Wood); supply != 6 {
		t.Fatalf("supply: got %v want 6", supply)
	}

	// The rest fills and closes the offer.
	rec2, err := m.AcceptOffer(o.ID, "b2", 100)
	if err != nil {
		t.Fatalf("second accept: %v", err)
	}
	if rec2.Quantity != 6 {
		t.Fatalf("clamped fill: got %v want 6", rec2.Quantity)
	}
	if _, ok := m.Offer(o.ID); ok {
		t.Fatalf("drained offer still listed")
	}
}

func TestAcceptChecksMinimumBeforeClamping(t *testing.T) {
	m, _ := newTestMarket(DefaultConfig())
	o, _ := m.CreateOffer(OfferRequest{SellerID: "s", Kind: resource.Wood, Quantity: 10, PricePerUnit: 5, MinQuantity: 5})

	if _, err := m.AcceptOffer(o.ID, "b", 4); !errors.Is(err, ErrBelowMinQuantity) {
		t.Fatalf("small fill: got %v", err)
	}
	// Drain to 3 remaining, below the offer minimum.
	if _, err := m.AcceptOffer(o.ID, "b", 7); err != nil {
		t.Fatalf("drain: %v", err)
	}
	// A request under the minimum fails even though clamping would
	// shrink it anyway; a request over the minimum clamps and fills.
	if _, err := m.AcceptOffer(o.ID, "b2", 4); !errors.Is(err, ErrBelowMinQuantity) {
		t.Fatalf("under minimum: got %v", err)
	}
	rec, err := m.AcceptOffer(o.ID, "b2", 6)
	if err != nil {
		t.Fatalf("over minimum: %v", err)
	}
	if rec.Quantity != 3 {
		t.Fatalf("clamped fill: got %v want 3", rec.Quantity)
	}
}

func TestAcceptRejectsSelfTrade(t *testing.T) {
	m, _ := newTestMarket(DefaultConfig())
	o, _ := m.CreateOffer(OfferRequest{SellerID: "s", Kind: resource.Wood, Quantity: 10, PricePerUnit: 5})
	if _, err := m.AcceptOffer(o.ID, "s", 5); !errors.Is(err, ErrSelfTrade) {
		t.Fatalf("error: got %v", err)
	}
	if got, _ := m.Offer(o.ID); got.Quantity != 10 {
		t.Fatalf("offer mutated: got %+v", got)
	}
}

func TestAcceptRejectsExpiredOffer(t *testing.T) {
	m, current := newTestMarket(DefaultConfig())
	o, _ := m.CreateOffer(OfferRequest{SellerID: "s", Kind: resource.Wood, Quantity: 10, PricePerUnit: 5, Duration: time.Hour})

	*current = current.Add(2 * time.Hour)
	if _, err := m.AcceptOffer(o.ID, "b", 5); !errors.Is(err, ErrOfferInactive) {
		t.Fatalf("error: got %v", err)
	}
}

func TestCancelOffer(t *testing.T) {
	m, _ := newTestMarket(DefaultConfig())
	rec := &eventRecorder{}
	m.AttachObserver(rec)
	o, _ := m.CreateOffer(OfferRequest{SellerID: "s", Kind: resource.Wood, Quantity: 10, PricePerUnit: 5})

	if err := m.CancelOffer(o.ID, "imposter"); !errors.Is(err, ErrNotSeller) {
		t.Fatalf("imposter cancel: got %v", err)
	}
	if err := m.CancelOffer("nope", "s"); !errors.Is(err, ErrOfferNotFound) {
		t.Fatalf("unknown cancel: got %v", err)
	}
	if err := m.CancelOffer(o.ID, "s"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, ok := m.Offer(o.ID); ok {
		t.Fatalf("cancelled offer still listed")
	}
	if supply, _ := m.SupplyDemand(resource.Wood); supply != 0 {
		t.Fatalf("supply: got %v want 0", supply)
	}
	last := rec.events[len(rec.events)-1]
	if last.Type != EventOfferCancelled || last.Offer.Status != StatusCancelled {
		t.Fatalf("event: got %+v", last)
	}
}

func TestCancelExpiredUnsweptOffer(t *testing.T) {
	m, current := newTestMarket(DefaultConfig())
	o, _ := m.CreateOffer(OfferRequest{SellerID: "s", Kind: resource.Wood, Quantity: 10, PricePerUnit: 5, Duration: time.Hour})
	*current = current.Add(2 * time.Hour)

	// Not swept yet, so the seller can still withdraw it.
	if err := m.CancelOffer(o.ID, "s"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := m.CleanupExpired(); got != 0 {
		t.Fatalf("cleanup after cancel: got %d want 0", got)
	}
}

func TestCleanupExpiredSweepsOnce(t *testing.T) {
	m, current := newTestMarket(DefaultConfig())
	rec := &eventRecorder{}
	m.AttachObserver(rec)

	m.CreateOffer(OfferRequest{SellerID: "s", Kind: resource.Wood, Quantity: 5, PricePerUnit: 5, Duration: time.Hour})
	m.CreateOffer(OfferRequest{SellerID: "s", Kind: resource.Stone, Quantity: 3, PricePerUnit: 9, Duration: time.Hour})
	keeper, _ := m.CreateOffer(OfferRequest{SellerID: "s", Kind: resource.Gold, Quantity: 1, PricePerUnit: 50})

	*current = current.Add(2 * time.Hour)
	if got := m.CleanupExpired(); got != 2 {
		t.Fatalf("swept: got %d want 2", got)
	}
	if got := m.CleanupExpired(); got != 0 {
		t.Fatalf("second sweep: got %d want 0", got)
	}
	if _, ok := m.Offer(keeper.ID); !ok {
		t.Fatalf("unexpiring offer swept")
	}
	if supply, _ := m.SupplyDemand(resource.Wood); supply != 0 {
		t.Fatalf("wood supply: got %v want 0", supply)
	}

	expired := 0
	for _, evt := range rec.events {
		if evt.Type == EventOfferExpired {
			expired++
			if evt.Offer.Status != StatusExpired {
				t.Fatalf("event offer status: got %+v", evt.Offer)
			}
		}
	}
	if expired != 2 {
		t.Fatalf("expiry events: got %d want 2", expired)
	}
}

func TestOffersForResourceSortsByPrice(t *testing.T) {
	m, current := newTestMarket(DefaultConfig())
	m.CreateOffer(OfferRequest{SellerID: "a", Kind: resource.Wood, Quantity: 1, PricePerUnit: 7})
	m.CreateOffer(OfferRequest{SellerID: "b", Kind: resource.Wood, Quantity: 1, PricePerUnit: 5})
	m.CreateOffer(OfferRequest{SellerID: "c", Kind: resource.Wood, Quantity: 1, PricePerUnit: 9, Duration: time.Hour})
	m.CreateOffer(OfferRequest{SellerID: "d", Kind: resource.Stone, Quantity: 1, PricePerUnit: 1})

	offers := m.OffersForResource(resource.Wood, true)
	if len(offers) != 3 {
		t.Fatalf("offers: got %d want 3", len(offers))
	}
	if offers[0].PricePerUnit != 5 || offers[1].PricePerUnit != 7 || offers[2].PricePerUnit != 9 {
		t.Fatalf("order: got %v %v %v", offers[0].PricePerUnit, offers[1].PricePerUnit, offers[2].PricePerUnit)
	}

	// The expired-but-unswept offer only shows up when inactive
	// listings are requested too.
	*current = current.Add(2 * time.Hour)
	if got := len(m.OffersForResource(resource.Wood, true)); got != 2 {
		t.Fatalf("active offers: got %d want 2", got)
	}
	if got := len(m.OffersForResource(resource.Wood, false)); got != 3 {
		t.Fatalf("all offers: got %d want 3", got)
	}
}

func TestOffersBySeller(t *testing.T) {
	m, _ := newTestMarket(DefaultConfig())
	m.CreateOffer(OfferRequest{SellerID: "s", Kind: resource.Wood, Quantity: 1, PricePerUnit: 5})
	m.CreateOffer(OfferRequest{SellerID: "s", Kind: resource.Stone, Quantity: 1, PricePerUnit: 9})
	m.CreateOffer(OfferRequest{SellerID: "other", Kind: resource.Wood, Quantity: 1, PricePerUnit: 5})

	offers := m.OffersBySeller("s")
	if len(offers) != 2 {
		t.Fatalf("offers: got %d want 2", len(offers))
	}
	for _, o := range offers {
		if o.SellerID != "s" {
			t.Fatalf("foreign offer: %+v", o)
		}
	}
}

func TestFeeChargedOnTrades(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FeeRate = 0.25
	m, _ := newTestMarket(cfg)
	o, _ := m.CreateOffer(OfferRequest{SellerID: "s", Kind: resource.Wood, Quantity: 10, PricePerUnit: 5})

	rec, err := m.AcceptOffer(o.ID, "b", 0)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if rec.Total != 50 || rec.Fee != 12.5 {
		t.Fatalf("record: got total=%v fee=%v", rec.Total, rec.Fee)
	}
	stats := m.Stats()
	if stats.TotalVolume != 50 || stats.TotalFees != 12.5 {
		t.Fatalf("stats: got %+v", stats)
	}
}

func TestTrackerRecordsFills(t *testing.T) {
	m, _ := newTestMarket(DefaultConfig())
	o, _ := m.CreateOffer(OfferRequest{SellerID: "s", Kind: resource.Wood, Quantity: 10, PricePerUnit: 5})
	m.AcceptOffer(o.ID, "b", 4)

	price, ok := m.Tracker().Current(resource.Wood)
	if !ok || price != 5 {
		t.Fatalf("tracked price: got %v/%v want 5/true", price, ok)
	}
	h := m.Tracker().History(resource.Wood, 0)
	if len(h) != 1 || h[0].Quantity != 4 {
		t.Fatalf("tracked point: got %+v", h)
	}
}

func TestTrackingDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TrackPrices = false
	m, _ := newTestMarket(cfg)
	o, _ := m.CreateOffer(OfferRequest{SellerID: "s", Kind: resource.Wood, Quantity: 10, PricePerUnit: 5})
	if _, err := m.AcceptOffer(o.ID, "b", 4); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if m.Tracker() != nil {
		t.Fatalf("tracker created with tracking disabled")
	}
}

func TestMarketPriceReactsToDemand(t *testing.T) {
	m, _ := newTestMarket(DefaultConfig())
	m.CreateOffer(OfferRequest{SellerID: "s", Kind: resource.Wood, Quantity: 1, PricePerUnit: 5})
	m.RecordDemand(resource.Wood, 3)

	// supply 1, demand 3 at moderate volatility: 8 * 1.5.
	if got := m.MarketPrice(resource.Wood); got != 12 {
		t.Fatalf("market price: got %v want 12", got)
	}
	if supply, demand := m.SupplyDemand(resource.Wood); supply != 1 || demand != 3 {
		t.Fatalf("supply/demand: got %v/%v", supply, demand)
	}
}

func TestSetPricingStrategyAnnouncesChange(t *testing.T) {
	m, _ := newTestMarket(DefaultConfig())
	rec := &eventRecorder{}
	m.AttachObserver(rec)

	m.SetPricingStrategy(pricing.NewFixedPricing())

	if len(rec.events) != 1 {
		t.Fatalf("events: got %d want 1", len(rec.events))
	}
	evt := rec.events[0]
	if evt.Type != EventPriceChanged || evt.OldStrategy != "supply_demand(moderate)" || evt.NewStrategy != "fixed" {
		t.Fatalf("event: got %+v", evt)
	}
	if got := m.Stats().PricingStrategy; got != "fixed" {
		t.Fatalf("strategy: got %q", got)
	}
}

func TestObserverPanicIsolated(t *testing.T) {
	m, _ := newTestMarket(DefaultConfig())
	rec := &eventRecorder{}
	m.AttachObserver(panicObserver{})
	m.AttachObserver(rec)

	o, err := m.CreateOffer(OfferRequest{SellerID: "s", Kind: resource.Wood, Quantity: 10, PricePerUnit: 5})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(rec.events) != 1 || rec.events[0].Type != EventOfferCreated {
		t.Fatalf("second observer missed event: %+v", rec.events)
	}
	// The market itself stays consistent.
	if _, ok := m.Offer(o.ID); !ok {
		t.Fatalf("offer lost after observer panic")
	}
}

func TestHistoryQueries(t *testing.T) {
	m, _ := newTestMarket(DefaultConfig())
	w, _ := m.CreateOffer(OfferRequest{SellerID: "s", Kind: resource.Wood, Quantity: 10, PricePerUnit: 5})
	s, _ := m.CreateOffer(OfferRequest{SellerID: "s", Kind: resource.Stone, Quantity: 10, PricePerUnit: 9})
	m.AcceptOffer(w.ID, "b", 2)
	m.AcceptOffer(s.ID, "b", 3)
	m.AcceptOffer(w.ID, "c", 4)

	all := m.History(0)
	if len(all) != 3 {
		t.Fatalf("history: got %d want 3", len(all))
	}
	tail := m.History(2)
	if len(tail) != 2 || tail[0].Kind != resource.Stone || tail[1].Quantity != 4 {
		t.Fatalf("tail: got %+v", tail)
	}
	wood := m.HistoryFor(resource.Wood, 0)
	if len(wood) != 2 || wood[0].Quantity != 2 || wood[1].Quantity != 4 {
		t.Fatalf("wood history: got %+v", wood)
	}
	mine := m.HistoryForAgent("c", 0)
	if len(mine) != 1 || mine[0].Quantity != 4 {
		t.Fatalf("buyer history: got %+v", mine)
	}
	if got := len(m.HistoryForAgent("s", 0)); got != 3 {
		t.Fatalf("seller history: got %d want 3", got)
	}
}

func TestStatsSnapshot(t *testing.T) {
	m, _ := newTestMarket(DefaultConfig())
	rec := &eventRecorder{}
	m.AttachObserver(rec)
	o, _ := m.CreateOffer(OfferRequest{SellerID: "s", Kind: resource.Wood, Quantity: 10, PricePerUnit: 5})
	m.CreateOffer(OfferRequest{SellerID: "s", Kind: resource.Stone, Quantity: 3, PricePerUnit: 9})
	m.AcceptOffer(o.ID, "b", 4)

	stats := m.Stats()
	if stats.ActiveOffers != 2 {
		t.Fatalf("active offers: got %d want 2", stats.ActiveOffers)
	}
	if stats.TotalTrades != 1 {
		t.Fatalf("trades: got %d want 1", stats.TotalTrades)
	}
	if stats.TrackedResources != 1 {
		t.Fatalf("tracked: got %d want 1", stats.TrackedResources)
	}
	if stats.Observers != 1 {
		t.Fatalf("observers: got %d want 1", stats.Observers)
	}
	if stats.PricingStrategy != "supply_demand(moderate)" {
		t.Fatalf("strategy: got %q", stats.PricingStrategy)
	}
}

func TestStatsByKind(t *testing.T) {
	m, _ := newTestMarket(DefaultConfig())
	o, _ := m.CreateOffer(OfferRequest{SellerID: "s", Kind: resource.Wood, Quantity: 10, PricePerUnit: 4})
	m.AcceptOffer(o.ID, "b", 4)
	m.RecordDemand(resource.Wood, 3)
	m.RecordDemand(resource.Kind("obsidian"), 2)

	byKind := m.StatsByKind()
	if len(byKind) != 6 {
		t.Fatalf("kinds: got %d want 6", len(byKind))
	}
	wood := byKind[len(byKind)-1]
	if wood.Kind != resource.Wood {
		t.Fatalf("sort order: got %q last", wood.Kind)
	}
	if wood.Supply != 6 || wood.Demand != 3 {
		t.Fatalf("wood book: got %+v", wood)
	}
	// demand/supply is 0.5, so moderate volatility discounts base 8 to 7.
	if wood.Price != 7 {
		t.Fatalf("wood price: got %v want 7", wood.Price)
	}
	if !wood.Traded || wood.AveragePrice != 4 {
		t.Fatalf("wood average: got %+v", wood)
	}
	// Demand-only kinds still show up, priced off the fallback base.
	obsidian := byKind[3]
	if obsidian.Kind != resource.Kind("obsidian") || obsidian.Supply != 0 || obsidian.Demand != 2 {
		t.Fatalf("obsidian book: got %+v", obsidian)
	}
	if obsidian.Price != 12.5 || obsidian.Traded {
		t.Fatalf("obsidian price: got %+v", obsidian)
	}
	food := byKind[0]
	if food.Kind != resource.Food || food.Price != 10 || food.Traded {
		t.Fatalf("food: got %+v", food)
	}
}
