// Package pricing computes trade prices: pluggable strategies over a
// market view, and a tracker recording realized prices over time.
package pricing

import (
	"fmt"
	"sync"

	"aisociety.ai/internal/economy/resource"
)

// MarketView exposes the market state strategies price against. The
// marketplace passes an unlocked view of itself while holding its own
// lock, so implementations must not lock again.
type MarketView interface {
	// SupplyDemand reports listed supply and recorded demand for kind.
	SupplyDemand(kind resource.Kind) (supply, demand float64)
}

// Strategy turns a base price into an asking price.
type Strategy interface {
	Price(kind resource.Kind, view MarketView, base float64) float64
	Name() string
}

// Volatility scales how strongly supply and demand move prices.
type Volatility float64

const (
	Stable   Volatility = 0.1
	Moderate Volatility = 0.25
	Volatile Volatility = 0.5
	Extreme  Volatility = 1.0
)

func (v Volatility) String() string {
	switch v {
	case Stable:
		return "stable"
	case Moderate:
		return "moderate"
	case Volatile:
		return "volatile"
	case Extreme:
		return "extreme"
	}
	return fmt.Sprintf("%.2f", float64(v))
}

// ParseVolatility maps a tuning name to a volatility level.
func ParseVolatility(name string) (Volatility, error) {
	switch name {
	case "stable":
		return Stable, nil
	case "moderate", "":
		return Moderate, nil
	case "volatile":
		return Volatile, nil
	case "extreme":
		return Extreme, nil
	}
	return 0, fmt.Errorf("unknown volatility %q", name)
}

// FixedPricing returns the base price unless an explicit override is
// set for the kind.
type FixedPricing struct {
	mu        sync.Mutex
	overrides map[resource.Kind]float64
}

func NewFixedPricing() *FixedPricing {
	return &FixedPricing{overrides: make(map[resource.Kind]float64)}
}

// SetPrice pins the price for kind, ignoring the base from then on.
func (f *FixedPricing) SetPrice(kind resource.Kind, price float64) {
	f.mu.Lock()
	f.overrides[kind] = price
	f.mu.Unlock()
}

func (f *FixedPricing) Price(kind resource.Kind, _ MarketView, base float64) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if price, ok := f.overrides[kind]; ok {
		return price
	}
	return base
}

func (f *FixedPricing) Name() string { return "fixed" }

// SupplyDemandPricing scales the base price by the demand/supply ratio,
// dampened by volatility and clamped to [MinModifier, MaxModifier].
// Missing supply or demand counts as balanced rather than extreme.
type SupplyDemandPricing struct {
	Volatility  Volatility
	MinModifier float64
	MaxModifier float64
}

func NewSupplyDemandPricing(v Volatility) SupplyDemandPricing {
	return SupplyDemandPricing{Volatility: v, MinModifier: 0.5, MaxModifier: 2.0}
}

func (s SupplyDemandPricing) Price(kind resource.Kind, view MarketView, base float64) float64 {
	supply, demand := 1.0, 1.0
	if view != nil {
		supply, demand = view.SupplyDemand(kind)
		if supply <= 0 {
			supply = 1.0
		}
		if demand <= 0 {
			demand = 1.0
		}
	}
	ratio := demand / supply
	modifier := 1 + (ratio-1)*float64(s.Volatility)
	if modifier < s.MinModifier {
		modifier = s.MinModifier
	}
	if modifier > s.MaxModifier {
		modifier = s.MaxModifier
	}
	return base * modifier
}

func (s SupplyDemandPricing) Name() string {
	return fmt.Sprintf("supply_demand(%s)", s.Volatility)
}

// Relation classifies how two agents stand to each other.
type Relation string

const (
	Ally    Relation = "ally"
	Neutral Relation = "neutral"
	Hostile Relation = "hostile"
)

// RelationshipPricing wraps a base strategy and adjusts the price a
// particular buyer pays: shared faction membership discounts first,
// then the pairwise relation. Price without a buyer delegates
// unchanged.
type RelationshipPricing struct {
	Base            Strategy
	AllyDiscount    float64
	EnemyPremium    float64
	FactionDiscount float64

	mu        sync.Mutex
	relations map[pairKey]Relation
	factions  map[string]string // agent id -> faction id
}

type pairKey struct{ a, b string }

func orderedPair(a, b string) pairKey {
	if b < a {
		a, b = b, a
	}
	return pairKey{a: a, b: b}
}

func NewRelationshipPricing(base Strategy) *RelationshipPricing {
	return &RelationshipPricing{
		Base:            base,
		AllyDiscount:    0.15,
		EnemyPremium:    0.25,
		FactionDiscount: 0.20,
		relations:       make(map[pairKey]Relation),
		factions:        make(map[string]string),
	}
}

// SetRelation records a symmetric relation between two agents.
func (r *RelationshipPricing) SetRelation(a, b string, rel Relation) {
	r.mu.Lock()
	r.relations[orderedPair(a, b)] = rel
	r.mu.Unlock()
}

// SetFaction assigns an agent to a faction; empty clears it.
func (r *RelationshipPricing) SetFaction(agentID, factionID string) {
	r.mu.Lock()
	if factionID == "" {
		delete(r.factions, agentID)
	} else {
		r.factions[agentID] = factionID
	}
	r.mu.Unlock()
}

func (r *RelationshipPricing) Price(kind resource.Kind, view MarketView, base float64) float64 {
	return r.Base.Price(kind, view, base)
}

// PriceFor is the price buyer pays seller for kind. The result never
// drops below 0.01.
func (r *RelationshipPricing) PriceFor(sellerID, buyerID string, kind resource.Kind, view MarketView, base float64) float64 {
	price := r.Base.Price(kind, view, base)

	r.mu.Lock()
	sameFaction := r.factions[sellerID] != "" && r.factions[sellerID] == r.factions[buyerID]
	rel := r.relations[orderedPair(sellerID, buyerID)]
	r.mu.Unlock()

	if sameFaction {
		price *= 1 - r.FactionDiscount
	}
	switch rel {
	case Ally:
		price *= 1 - r.AllyDiscount
	case Hostile:
		price *= 1 + r.EnemyPremium
	}
	if price < 0.01 {
		price = 0.01
	}
	return price
}

func (r *RelationshipPricing) Name() string {
	return fmt.Sprintf("relationship(%s)", r.Base.Name())
}
