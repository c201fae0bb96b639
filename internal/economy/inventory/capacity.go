package inventory

import (
	"aisociety.ai/internal/economy/resource"
)

// Strategy decides whether a stack may enter an inventory and how much
// headroom is left. CanAdd is a pure predicate evaluated as if the stack
// were added now; it never mutates. The inventory invokes strategies
// with its own lock held, so implementations read inventory state only
// through the unexported locked accessors.
type Strategy interface {
	CanAdd(inv *Inventory, stack resource.Stack) bool
	// Remaining reports headroom in [0,1]; 0 means full.
	Remaining(inv *Inventory) float64
	Info(inv *Inventory) CapacityInfo
}

// CapacityInfo is a diagnostic snapshot of one strategy's usage.
type CapacityInfo struct {
	Kind       string
	Used       float64
	Max        float64
	Percentage float64

	// Composite only.
	Strategies      []CapacityInfo
	MostRestrictive string
}

// Unlimited admits everything.
type Unlimited struct{}

func (Unlimited) CanAdd(*Inventory, resource.Stack) bool { return true }
func (Unlimited) Remaining(*Inventory) float64           { return 1 }

func (Unlimited) Info(*Inventory) CapacityInfo {
	return CapacityInfo{Kind: "unlimited", Percentage: 100}
}

// SlotBased counts stacks: one stack is one slot regardless of quantity.
// A candidate that pools into an existing stack consumes no slot, so
// CanAdd runs the same merge search Add runs. The zero value admits
// nothing.
type SlotBased struct {
	MaxSlots int
}

func (s SlotBased) CanAdd(inv *Inventory, stack resource.Stack) bool {
	if mergeTarget(inv.stacks, stack) >= 0 {
		return true
	}
	return len(inv.stacks) < s.MaxSlots
}

func (s SlotBased) Remaining(inv *Inventory) float64 {
	if s.MaxSlots <= 0 {
		return 0
	}
	return float64(s.MaxSlots-len(inv.stacks)) / float64(s.MaxSlots)
}

func (s SlotBased) Info(inv *Inventory) CapacityInfo {
	used := float64(len(inv.stacks))
	max := float64(s.MaxSlots)
	info := CapacityInfo{Kind: "slots", Used: used, Max: max}
	if max > 0 {
		info.Percentage = used / max * 100
	}
	return info
}

// WeightBased caps the summed weight of all stacks. The zero value
// admits nothing.
type WeightBased struct {
	MaxWeight float64
}

func (w WeightBased) CanAdd(inv *Inventory, stack resource.Stack) bool {
	return inv.totalWeightLocked()+stack.TotalWeight() <= w.MaxWeight
}

func (w WeightBased) Remaining(inv *Inventory) float64 {
	if w.MaxWeight <= 0 {
		return 0
	}
	return (w.MaxWeight - inv.totalWeightLocked()) / w.MaxWeight
}

func (w WeightBased) Info(inv *Inventory) CapacityInfo {
	used := inv.totalWeightLocked()
	info := CapacityInfo{Kind: "weight", Used: used, Max: w.MaxWeight}
	if w.MaxWeight > 0 {
		info.Percentage = used / w.MaxWeight * 100
	}
	return info
}

// VolumeBased caps the summed volume of all stacks. The zero value
// admits nothing.
type VolumeBased struct {
	MaxVolume float64
}

func (v VolumeBased) CanAdd(inv *Inventory, stack resource.Stack) bool {
	return inv.totalVolumeLocked()+stack.TotalVolume() <= v.MaxVolume
}

func (v VolumeBased) Remaining(inv *Inventory) float64 {
	if v.MaxVolume <= 0 {
		return 0
	}
	return (v.MaxVolume - inv.totalVolumeLocked()) / v.MaxVolume
}

func (v VolumeBased) Info(inv *Inventory) CapacityInfo {
	used := inv.totalVolumeLocked()
	info := CapacityInfo{Kind: "volume", Used: used, Max: v.MaxVolume}
	if v.MaxVolume > 0 {
		info.Percentage = used / v.MaxVolume * 100
	}
	return info
}

// Composite requires every member strategy to admit and reports the
// minimum remaining headroom. It never special-cases member types. An
// empty composite admits nothing.
type Composite struct {
	Strategies []Strategy
}

func (c Composite) CanAdd(inv *Inventory, stack resource.Stack) bool {
	if len(c.Strategies) == 0 {
		return false
	}
	for _, s := range c.Strategies {
		if !s.CanAdd(inv, stack) {
			return false
		}
	}
	return true
}

func (c Composite) Remaining(inv *Inventory) float64 {
	if len(c.Strategies) == 0 {
		return 0
	}
	min := c.Strategies[0].Remaining(inv)
	for _, s := range c.Strategies[1:] {
		if r := s.Remaining(inv); r < min {
			min = r
		}
	}
	return min
}

func (c Composite) Info(inv *Inventory) CapacityInfo {
	info := CapacityInfo{Kind: "composite"}
	if len(c.Strategies) == 0 {
		return info
	}
	minRemaining := c.Strategies[0].Remaining(inv)
	info.MostRestrictive = c.Strategies[0].Info(inv).Kind
	for _, s := range c.Strategies {
		sub := s.Info(inv)
		info.Strategies = append(info.Strategies, sub)
		if r := s.Remaining(inv); r < minRemaining {
			minRemaining = r
			info.MostRestrictive = sub.Kind
		}
	}
	info.Percentage = (1 - minRemaining) * 100
	return info
}
