package main

import (
	"context"
	"log"
	"math/rand"
	"time"

	"aisociety.ai/internal/economy/inventory"
	"aisociety.ai/internal/economy/market"
	"aisociety.ai/internal/economy/resource"
	"aisociety.ai/internal/economy/tuning"
	"aisociety.ai/internal/persistence/ledgerdb"
)

// runDemo drives a small agent economy against the marketplace so the
// feed, journal, and ledger carry live data: offers, fills, barter
// trades, and town stockpile traffic.
func runDemo(ctx context.Context, mkt *market.Marketplace, ledger *ledgerdb.Ledger, capacity tuning.Capacity, logger *log.Logger) {
	d := newDemoEconomy(mkt, ledger, capacity, logger)
	logger.Printf("demo economy running with %d agents", len(d.agents))

	ticker := time.NewTicker(750 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.step()
		}
	}
}

type demoAgent struct {
	id  string
	inv *inventory.Inventory
}

type demoEconomy struct {
	mkt    *market.Marketplace
	ledger *ledgerdb.Ledger
	log    *log.Logger
	rng    *rand.Rand

	agents []*demoAgent
	byID   map[string]*demoAgent
	town   *inventory.Stockpile
	kinds  []resource.Kind
	start  time.Time
}

// Per-unit physical parameters for the demo's tradeable kinds.
var demoStacks = map[resource.Kind]resource.Stack{
	resource.Food:  {Kind: resource.Food, WeightPerUnit: 0.5, VolumePerUnit: 0.5, MaxStackSize: 50},
	resource.Wood:  {Kind: resource.Wood, WeightPerUnit: 2, VolumePerUnit: 4, MaxStackSize: 100},
	resource.Stone: {Kind: resource.Stone, WeightPerUnit: 5, VolumePerUnit: 2, MaxStackSize: 100},
	resource.Metal: {Kind: resource.Metal, WeightPerUnit: 8, VolumePerUnit: 1, MaxStackSize: 50},
	resource.Gold:  {Kind: resource.Gold, WeightPerUnit: 0.1, VolumePerUnit: 0.1, MaxStackSize: 1000},
}

var demoSeed = map[resource.Kind]float64{
	resource.Food:  30,
	resource.Wood:  10,
	resource.Stone: 10,
	resource.Metal: 5,
	resource.Gold:  50,
}

func newDemoEconomy(mkt *market.Marketplace, ledger *ledgerdb.Ledger, capacity tuning.Capacity, logger *log.Logger) *demoEconomy {
	d := &demoEconomy{
		mkt:    mkt,
		ledger: ledger,
		log:    logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		byID:   make(map[string]*demoAgent),
		town:   inventory.NewStockpile("town_hall", "Town Hall", inventory.Position{}, inventory.Unlimited{}, nil),
		start:  time.Now(),
	}
	for kind := range demoStacks {
		d.kinds = append(d.kinds, kind)
	}

	strategy := demoStrategy(capacity)
	for _, id := range []string{"alice", "bob", "carol"} {
		a := &demoAgent{id: id, inv: inventory.New(id, strategy, id+"'s pack")}
		for kind, qty := range demoSeed {
			stack := demoStacks[kind]
			stack.Quantity = qty
			a.inv.Add(stack)
		}
		d.agents = append(d.agents, a)
		d.byID[id] = a
	}
	return d
}

// demoStrategy builds agent packs from the configured limits, skipping
// dimensions left at zero.
func demoStrategy(c tuning.Capacity) inventory.Strategy {
	var members []inventory.Strategy
	if c.MaxSlots > 0 {
		members = append(members, inventory.SlotBased{MaxSlots: c.MaxSlots})
	}
	if c.MaxWeight > 0 {
		members = append(members, inventory.WeightBased{MaxWeight: c.MaxWeight})
	}
	if c.MaxVolume > 0 {
		members = append(members, inventory.VolumeBased{MaxVolume: c.MaxVolume})
	}
	if len(members) == 0 {
		return inventory.Unlimited{}
	}
	return inventory.Composite{Strategies: members}
}

func (d *demoEconomy) step() {
	switch d.rng.Intn(5) {
	case 0:
		d.postOffer()
	case 1:
		d.fillOffer()
	case 2:
		d.visitStockpile()
	case 3:
		d.barter()
	case 4:
		d.windowShop()
	}
}

func (d *demoEconomy) randAgent() *demoAgent {
	return d.agents[d.rng.Intn(len(d.agents))]
}

func (d *demoEconomy) randKind() resource.Kind {
	return d.kinds[d.rng.Intn(len(d.kinds))]
}

func (d *demoEconomy) simTime() float64 {
	return time.Since(d.start).Seconds()
}

func (d *demoEconomy) postOffer() {
	seller := d.randAgent()
	kind := d.randKind()
	have := seller.inv.GetQuantity(kind)
	if have < 2 {
		return
	}
	qty := 1 + float64(d.rng.Intn(int(have/2)))
	offer, err := d.mkt.CreateOffer(market.OfferRequest{
		SellerID: seller.id,
		Kind:     kind,
		Quantity: qty,
	})
	if err != nil {
		return
	}
	d.log.Printf("demo: %s offers %.0f %s @ %.2f", seller.id, offer.Quantity, offer.Kind, offer.PricePerUnit)
}

func (d *demoEconomy) fillOffer() {
	buyer := d.randAgent()
	offers := d.mkt.OffersForResource(d.randKind(), true)
	for _, offer := range offers {
		if offer.SellerID == buyer.id {
			continue
		}
		qty := offer.Quantity * (0.5 + d.rng.Float64()*0.5)
		rec, err := d.mkt.AcceptOffer(offer.ID, buyer.id, qty)
		if err != nil {
			return
		}
		seller := d.byID[rec.SellerID]
		if seller == nil {
			return
		}
		// Offers are not escrowed; settlement can fail when the seller
		// already spent the goods.
		res := inventory.Transfer(seller.inv, buyer.inv, rec.Kind, rec.Quantity)
		if !res.Success {
			d.log.Printf("demo: settlement %s->%s failed: %s", rec.SellerID, buyer.id, res.Failure)
			return
		}
		d.log.Printf("demo: %s bought %.1f %s from %s for %.2f (fee %.2f)",
			buyer.id, rec.Quantity, rec.Kind, rec.SellerID, rec.Total, rec.Fee)
		return
	}
}

func (d *demoEconomy) visitStockpile() {
	agent := d.randAgent()
	kind := d.randKind()
	at := d.simTime()

	if d.rng.Intn(2) == 0 {
		have := agent.inv.GetQuantity(kind)
		if have < 10 {
			return
		}
		stack, ok := agent.inv.Remove(kind, have/2)
		if !ok {
			return
		}
		if res := d.town.Deposit(agent.id, stack, at); !res.Success {
			agent.inv.Add(stack)
			return
		}
		d.recordTownTransaction()
		return
	}

	available := d.town.Quantity(kind)
	if available <= 0 {
		return
	}
	want := available
	if want > 5 {
		want = 5
	}
	stack, res := d.town.Withdraw(agent.id, kind, want, at)
	if !res.Success {
		return
	}
	d.recordTownTransaction()
	if !agent.inv.Add(stack) {
		// Pack full; put it back.
		d.town.Deposit(agent.id, stack, at)
		d.recordTownTransaction()
	}
}

func (d *demoEconomy) barter() {
	a := d.randAgent()
	b := d.randAgent()
	if a == b {
		return
	}
	giveA := d.pickTradable(a)
	giveB := d.pickTradable(b)
	if giveA == "" || giveB == "" || giveA == giveB {
		return
	}
	result := inventory.Trade(a.inv, b.inv,
		map[resource.Kind]float64{giveA: 2},
		map[resource.Kind]float64{giveB: 2},
	)
	if !result.Success {
		return
	}
	d.log.Printf("demo: %s swapped 2 %s for 2 %s with %s", a.id, giveA, giveB, b.id)
}

func (d *demoEconomy) pickTradable(a *demoAgent) resource.Kind {
	for _, kind := range d.kinds {
		if a.inv.GetQuantity(kind) >= 4 {
			return kind
		}
	}
	return ""
}

func (d *demoEconomy) windowShop() {
	d.mkt.RecordDemand(d.randKind(), 1+d.rng.Float64()*4)
}

func (d *demoEconomy) recordTownTransaction() {
	if d.ledger == nil {
		return
	}
	h := d.town.History("", "", 1)
	if len(h) == 1 {
		d.ledger.RecordTransaction(d.town.ID(), h[0])
	}
}
