package inventory

import (
	"log"
	"sync/atomic"

	"aisociety.ai/internal/economy/resource"
)

// Event labels a change to an inventory's contents.
type Event string

const (
	EventItemAdded   Event = "item_added"
	EventItemRemoved Event = "item_removed"
	EventCleared     Event = "cleared"
)

// Observer receives change notifications. Observers run while the
// inventory's lock is held: they must return quickly and must not call
// back into the same inventory. stack is nil for EventCleared.
type Observer interface {
	OnInventoryChanged(inv *Inventory, event Event, stack *resource.Stack)
}

// LogObserver writes one line per change to a standard logger.
type LogObserver struct {
	Logger *log.Logger
}

func (o LogObserver) OnInventoryChanged(inv *Inventory, event Event, stack *resource.Stack) {
	if o.Logger == nil {
		return
	}
	if stack != nil {
		o.Logger.Printf("inventory %s: %s %s", inv.OwnerID(), event, stack)
		return
	}
	o.Logger.Printf("inventory %s: %s", inv.OwnerID(), event)
}

// StatsObserver counts change events. One instance may be shared across
// inventories.
type StatsObserver struct {
	Adds    atomic.Int64
	Removes atomic.Int64
	Clears  atomic.Int64
}

func (o *StatsObserver) OnInventoryChanged(_ *Inventory, event Event, _ *resource.Stack) {
	switch event {
	case EventItemAdded:
		o.Adds.Add(1)
	case EventItemRemoved:
		o.Removes.Add(1)
	case EventCleared:
		o.Clears.Add(1)
	}
}

func (o *StatsObserver) Reset() {
	o.Adds.Store(0)
	o.Removes.Store(0)
	o.Clears.Store(0)
}
