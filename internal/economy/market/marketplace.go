package market

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"aisociety.ai/internal/economy/pricing"
	"aisociety.ai/internal/economy/resource"
)

var (
	ErrOfferTooSmall    = errors.New("offer below minimum quantity")
	ErrSellerOverLimit  = errors.New("seller has too many active offers")
	ErrOfferNotFound    = errors.New("offer not found")
	ErrOfferInactive    = errors.New("offer not active")
	ErrSelfTrade        = errors.New("buyer is the seller")
	ErrBelowMinQuantity = errors.New("fill below offer minimum")
	ErrNotSeller        = errors.New("only the seller may cancel")
)

// Config tunes marketplace behavior. Zero values are permissive: no
// expiry, no minimum offer size, no per-seller limit, no fee.
// DefaultConfig returns the standard settlement parameters.
type Config struct {
	OfferDuration    time.Duration `yaml:"offer_duration"`
	MinOfferQuantity float64       `yaml:"min_offer_quantity"`
	MaxActiveOffers  int           `yaml:"max_active_offers"` // per seller
	TrackPrices      bool          `yaml:"track_prices"`
	FeeRate          float64       `yaml:"fee_rate"` // fraction of trade total
}

func DefaultConfig() Config {
	return Config{
		MinOfferQuantity: 0.1,
		MaxActiveOffers:  10,
		TrackPrices:      true,
	}
}

// fallbackBasePrice covers kinds missing from the base price table.
const fallbackBasePrice = 10.0

// DefaultBasePrices returns the built-in base price table. Callers get
// a fresh copy they may edit.
func DefaultBasePrices() map[resource.Kind]float64 {
	return map[resource.Kind]float64{
		resource.Food:  10,
		resource.Wood:  8,
		resource.Stone: 12,
		resource.Metal: 20,
		resource.Gold:  50,
	}
}

// OfferRequest carries the parameters for a new offer.
type OfferRequest struct {
	SellerID     string
	Kind         resource.Kind
	Quantity     float64
	PricePerUnit float64       // <= 0 asks the pricing strategy
	Duration     time.Duration // 0 uses the config duration
	MinQuantity  float64
}

// Stats is a marketplace snapshot.
type Stats struct {
	ActiveOffers     int
	TotalTrades      int
	TotalVolume      float64
	TotalFees        float64
	TrackedResources int
	PricingStrategy  string
	Observers        int
}

// Marketplace is an order book of sell offers with partial fills,
// expiry, configurable pricing and full trade history. All methods are
// safe for concurrent use.
type Marketplace struct {
	cfg Config

	mu         sync.Mutex
	offers     map[string]*Offer
	byKind     map[resource.Kind][]*Offer
	supply     map[resource.Kind]float64
	demand     map[resource.Kind]float64
	basePrices map[resource.Kind]float64
	strategy   pricing.Strategy
	tracker    *pricing.Tracker
	history    []Record
	observers  []Observer
	volume     float64
	fees       float64
	now        func() time.Time
}

// New builds a marketplace. A nil strategy prices by supply and demand
// at moderate volatility; a nil tracker gets created when the config
// enables tracking.
func New(cfg Config, strategy pricing.Strategy, tracker *pricing.Tracker) *Marketplace {
	if strategy == nil {
		strategy = pricing.NewSupplyDemandPricing(pricing.Moderate)
	}
	if tracker == nil && cfg.TrackPrices {
		tracker = pricing.NewTracker()
	}
	return &Marketplace{
		cfg:        cfg,
		offers:     make(map[string]*Offer),
		byKind:     make(map[resource.Kind][]*Offer),
		supply:     make(map[resource.Kind]float64),
		demand:     make(map[resource.Kind]float64),
		basePrices: DefaultBasePrices(),
		strategy:   strategy,
		tracker:    tracker,
		now:        time.Now,
	}
}

// Tracker returns the price tracker, nil when tracking is disabled.
func (m *Marketplace) Tracker() *pricing.Tracker { return m.tracker }

// CreateOffer lists quantity of kind for sale. A non-positive price
// asks the pricing strategy for the current market price.
func (m *Marketplace) CreateOffer(req OfferRequest) (Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if req.Quantity <= 0 || req.Quantity < m.cfg.MinOfferQuantity {
		return Offer{}, fmt.Errorf("%w: %v", ErrOfferTooSmall, req.Quantity)
	}
	now := m.now()
	if m.cfg.MaxActiveOffers > 0 && m.activeBySellerLocked(req.SellerID, now) >= m.cfg.MaxActiveOffers {
		return Offer{}, fmt.Errorf("%w: %s", ErrSellerOverLimit, req.SellerID)
	}

	price := req.PricePerUnit
	if price <= 0 {
		price = m.strategy.Price(req.Kind, lockedView{m}, m.basePriceLocked(req.Kind))
	}
	duration := req.Duration
	if duration == 0 {
		duration = m.cfg.OfferDuration
	}
	var expires time.Time
	if duration > 0 {
		expires = now.Add(duration)
	}

	o := &Offer{
		ID:               uuid.NewString(),
		SellerID:         req.SellerID,
		Kind:             req.Kind,
		Quantity:         req.Quantity,
		OriginalQuantity: req.Quantity,
		PricePerUnit:     price,
		MinQuantity:      req.MinQuantity,
		CreatedAt:        now,
		ExpiresAt:        expires,
		Status:           StatusPending,
	}
	m.offers[o.ID] = o
	m.byKind[o.Kind] = append(m.byKind[o.Kind], o)
	m.supply[o.Kind] += o.Quantity

	m.notifyLocked(Event{Type: EventOfferCreated, At: now, Kind: o.Kind, Offer: snapshot(o)})
	return *o, nil
}

// AcceptOffer fills an offer. A non-positive quantity takes everything
// remaining; a larger one is clamped to what remains. The offer's
// minimum fill is checked against the requested quantity before
// clamping.
func (m *Marketplace) AcceptOffer(offerID, buyerID string, quantity float64) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.offers[offerID]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrOfferNotFound, offerID)
	}
	now := m.now()
	if !o.ActiveAt(now) {
		return Record{}, fmt.Errorf("%w: %s", ErrOfferInactive, offerID)
	}
	if buyerID == o.SellerID {
		return Record{}, ErrSelfTrade
	}
	if quantity <= 0 {
		quantity = o.Quantity
	}
	if o.MinQuantity > 0 && quantity < o.MinQuantity {
		return Record{}, fmt.Errorf("%w: %v < %v", ErrBelowMinQuantity, quantity, o.MinQuantity)
	}
	if quantity > o.Quantity {
		quantity = o.Quantity
	}

	total := quantity * o.PricePerUnit
	fee := total * m.cfg.FeeRate

	o.Quantity -= quantity
	if o.Quantity <= 0 {
		o.Status = StatusAccepted
		m.deindexLocked(o)
	} else {
		o.Status = StatusPartial
	}
	m.supply[o.Kind] -= quantity

	rec := Record{
		ID:           uuid.NewString(),
		OfferID:      o.ID,
		SellerID:     o.SellerID,
		BuyerID:      buyerID,
		Kind:         o.Kind,
		Quantity:     quantity,
		PricePerUnit: o.PricePerUnit,
		Total:        total,
		Fee:          fee,
		At:           now,
	}
	m.history = append(m.history, rec)
	m.volume += total
	m.fees += fee

	if m.tracker != nil && m.cfg.TrackPrices {
		m.tracker.Record(o.Kind, o.PricePerUnit, quantity, now)
	}
	m.notifyLocked(Event{Type: EventTradeCompleted, At: now, Kind: o.Kind, Offer: snapshot(o), Trade: &rec})
	return rec, nil
}

// CancelOffer withdraws a live or expired-but-unswept offer. Only the
// seller may cancel.
func (m *Marketplace) CancelOffer(offerID, sellerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.offers[offerID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrOfferNotFound, offerID)
	}
	if o.SellerID != sellerID {
		return fmt.Errorf("%w: %s", ErrNotSeller, sellerID)
	}
	o.Status = StatusCancelled
	m.supply[o.Kind] -= o.Quantity
	m.deindexLocked(o)
	m.notifyLocked(Event{Type: EventOfferCancelled, At: m.now(), Kind: o.Kind, Offer: snapshot(o)})
	return nil
}

// CleanupExpired sweeps offers past their expiry, marks them expired
// and returns how many were swept. Safe to call on a timer; a second
// sweep finds nothing.
func (m *Marketplace) CleanupExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var expired []*Offer
	for _, o := range m.offers {
		if !o.ActiveAt(now) && (o.Status == StatusPending || o.Status == StatusPartial) {
			expired = append(expired, o)
		}
	}
	// Map iteration order is random; sweep events stay deterministic.
	sort.Slice(expired, func(i, j int) bool {
		if !expired[i].CreatedAt.Equal(expired[j].CreatedAt) {
			return expired[i].CreatedAt.Before(expired[j].CreatedAt)
		}
		return expired[i].ID < expired[j].ID
	})
	for _, o := range expired {
		o.Status = StatusExpired
		m.supply[o.Kind] -= o.Quantity
		m.deindexLocked(o)
		m.notifyLocked(Event{Type: EventOfferExpired, At: now, Kind: o.Kind, Offer: snapshot(o)})
	}
	return len(expired)
}

// Offer returns a snapshot of one listed offer. Swept, cancelled and
// fully accepted offers are gone.
func (m *Marketplace) Offer(offerID string) (Offer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offers[offerID]
	if !ok {
		return Offer{}, false
	}
	return *o, true
}

// OffersForResource lists offers for kind, cheapest first. With
// activeOnly set, expired-but-unswept offers are filtered out.
func (m *Marketplace) OffersForResource(kind resource.Kind, activeOnly bool) []Offer {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var out []Offer
	for _, o := range m.byKind[kind] {
		if activeOnly && !o.ActiveAt(now) {
			continue
		}
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PricePerUnit != out[j].PricePerUnit {
			return out[i].PricePerUnit < out[j].PricePerUnit
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// OffersBySeller lists one seller's listed offers, oldest first.
func (m *Marketplace) OffersBySeller(sellerID string) []Offer {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Offer
	for _, o := range m.offers {
		if o.SellerID == sellerID {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// MarketPrice asks the pricing strategy for kind's current price.
func (m *Marketplace) MarketPrice(kind resource.Kind) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.strategy.Price(kind, lockedView{m}, m.basePriceLocked(kind))
}

// RecordDemand notes buying interest used by demand-aware pricing.
func (m *Marketplace) RecordDemand(kind resource.Kind, quantity float64) {
	m.mu.Lock()
	m.demand[kind] += quantity
	m.mu.Unlock()
}

// SupplyDemand reports listed supply and recorded demand for kind. It
// implements pricing.MarketView for callers outside the marketplace.
func (m *Marketplace) SupplyDemand(kind resource.Kind) (float64, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.supply[kind], m.demand[kind]
}

// SetPricingStrategy swaps the pricing strategy and announces the
// change.
func (m *Marketplace) SetPricingStrategy(s pricing.Strategy) {
	if s == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.strategy.Name()
	m.strategy = s
	m.notifyLocked(Event{
		Type:        EventPriceChanged,
		At:          m.now(),
		OldStrategy: old,
		NewStrategy: s.Name(),
	})
}

// SetBasePrice overrides the base price for one kind.
func (m *Marketplace) SetBasePrice(kind resource.Kind, price float64) {
	m.mu.Lock()
	m.basePrices[kind] = price
	m.mu.Unlock()
}

// SetBasePrices replaces the whole base price table with a copy.
func (m *Marketplace) SetBasePrices(prices map[resource.Kind]float64) {
	m.mu.Lock()
	m.basePrices = make(map[resource.Kind]float64, len(prices))
	for k, v := range prices {
		m.basePrices[k] = v
	}
	m.mu.Unlock()
}

// BasePrice returns the configured base price for kind, falling back
// to the default for unknown kinds.
func (m *Marketplace) BasePrice(kind resource.Kind) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.basePriceLocked(kind)
}

// KnownKinds returns every kind the marketplace has a base price or an
// indexed offer for, sorted.
func (m *Marketplace) KnownKinds() []resource.Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.knownKindsLocked()
}

// History returns completed trades, oldest first. A positive limit
// keeps only the most recent.
func (m *Marketplace) History(limit int) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return tailRecords(m.history, limit)
}

// HistoryFor is History filtered to one resource kind.
func (m *Marketplace) HistoryFor(kind resource.Kind, limit int) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var filtered []Record
	for _, rec := range m.history {
		if rec.Kind == kind {
			filtered = append(filtered, rec)
		}
	}
	return tailRecords(filtered, limit)
}

// HistoryForAgent is History filtered to trades the agent took part in,
// on either side.
func (m *Marketplace) HistoryForAgent(agentID string, limit int) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var filtered []Record
	for _, rec := range m.history {
		if rec.SellerID == agentID || rec.BuyerID == agentID {
			filtered = append(filtered, rec)
		}
	}
	return tailRecords(filtered, limit)
}

// Stats summarizes the marketplace.
func (m *Marketplace) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	active := 0
	for _, o := range m.offers {
		if o.ActiveAt(now) {
			active++
		}
	}
	tracked := 0
	if m.tracker != nil {
		tracked = len(m.tracker.Kinds())
	}
	return Stats{
		ActiveOffers:     active,
		TotalTrades:      len(m.history),
		TotalVolume:      m.volume,
		TotalFees:        m.fees,
		TrackedResources: tracked,
		PricingStrategy:  m.strategy.Name(),
		Observers:        len(m.observers),
	}
}

// KindStats is one kind's slice of the market: listed supply, recorded
// demand, the strategy's current price, and the mean traded price.
// Traded is false while the tracker has no history for the kind.
type KindStats struct {
	Kind         resource.Kind
	Supply       float64
	Demand       float64
	Price        float64
	AveragePrice float64
	Traded       bool
}

// StatsByKind reports market state for every kind the marketplace has
// touched, sorted by kind. A kind counts as touched once it has a base
// price, an indexed offer, or any supply or demand on record.
func (m *Marketplace) StatsByKind() []KindStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[resource.Kind]struct{}, len(m.basePrices))
	for _, k := range m.knownKindsLocked() {
		seen[k] = struct{}{}
	}
	for k := range m.supply {
		seen[k] = struct{}{}
	}
	for k := range m.demand {
		seen[k] = struct{}{}
	}
	kinds := make([]resource.Kind, 0, len(seen))
	for k := range seen {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	out := make([]KindStats, 0, len(kinds))
	for _, k := range kinds {
		ks := KindStats{
			Kind:   k,
			Supply: m.supply[k],
			Demand: m.demand[k],
			Price:  m.strategy.Price(k, lockedView{m}, m.basePriceLocked(k)),
		}
		if m.tracker != nil {
			ks.AveragePrice, ks.Traded = m.tracker.Average(k, 0)
		}
		out = append(out, ks)
	}
	return out
}

func (m *Marketplace) AttachObserver(o Observer) {
	m.mu.Lock()
	m.observers = append(m.observers, o)
	m.mu.Unlock()
}

func (m *Marketplace) DetachObserver(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.observers {
		if existing == o {
			m.observers = append(m.observers[:i], m.observers[i+1:]...)
			return
		}
	}
}

// --- Locked internals ---

func (m *Marketplace) knownKindsLocked() []resource.Kind {
	seen := make(map[resource.Kind]struct{}, len(m.basePrices)+len(m.byKind))
	for k := range m.basePrices {
		seen[k] = struct{}{}
	}
	for k := range m.byKind {
		seen[k] = struct{}{}
	}
	kinds := make([]resource.Kind, 0, len(seen))
	for k := range seen {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func (m *Marketplace) basePriceLocked(kind resource.Kind) float64 {
	if price, ok := m.basePrices[kind]; ok {
		return price
	}
	return fallbackBasePrice
}

func (m *Marketplace) activeBySellerLocked(sellerID string, now time.Time) int {
	count := 0
	for _, o := range m.offers {
		if o.SellerID == sellerID && o.ActiveAt(now) {
			count++
		}
	}
	return count
}

// deindexLocked drops a terminal offer from both indexes.
func (m *Marketplace) deindexLocked(o *Offer) {
	delete(m.offers, o.ID)
	list := m.byKind[o.Kind]
	for i, existing := range list {
		if existing.ID == o.ID {
			m.byKind[o.Kind] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(m.byKind[o.Kind]) == 0 {
		delete(m.byKind, o.Kind)
	}
}

func (m *Marketplace) notifyLocked(evt Event) {
	for _, o := range m.observers {
		deliver(o, evt)
	}
}

// deliver isolates observer panics so one bad observer cannot poison
// the market or starve the others.
func deliver(o Observer, evt Event) {
	defer func() { _ = recover() }()
	o.OnMarketEvent(evt)
}

func snapshot(o *Offer) *Offer {
	snap := *o
	return &snap
}

func tailRecords(recs []Record, limit int) []Record {
	if limit > 0 && len(recs) > limit {
		recs = recs[len(recs)-limit:]
	}
	out := make([]Record, len(recs))
	copy(out, recs)
	return out
}

// lockedView lets pricing strategies read market state while the
// marketplace lock is already held. Strategies must not retain it.
type lockedView struct{ m *Marketplace }

func (v lockedView) SupplyDemand(kind resource.Kind) (float64, float64) {
	return v.m.supply[kind], v.m.demand[kind]
}
