// Package inventory implements resource containers and the operations
// that move stacks between them: capacity-checked inventories, shared
// stockpiles with access control, and atomic transfers and trades.
package inventory

import (
	"sort"
	"sync"
	"sync/atomic"

	"aisociety.ai/internal/economy/resource"
)

// lockSeq gives every inventory a creation-order rank. Pairwise
// operations acquire locks in rank order so opposing transfers cannot
// deadlock.
var lockSeq atomic.Uint64

// Inventory holds the stacks owned by one agent or stockpile. All
// methods are safe for concurrent use; every check-then-act sequence
// runs under the inventory's single lock.
type Inventory struct {
	ownerID  string
	name     string
	strategy Strategy
	seq      uint64

	mu        sync.Mutex
	stacks    []resource.Stack
	observers []Observer
}

// New returns an empty inventory. A nil strategy means unlimited
// capacity.
func New(ownerID string, strategy Strategy, name string) *Inventory {
	if strategy == nil {
		strategy = Unlimited{}
	}
	if name == "" {
		name = "Inventory"
	}
	return &Inventory{
		ownerID:  ownerID,
		name:     name,
		strategy: strategy,
		seq:      lockSeq.Add(1),
	}
}

func (inv *Inventory) OwnerID() string { return inv.ownerID }
func (inv *Inventory) Name() string    { return inv.name }

// --- Queries ---

func (inv *Inventory) TotalWeight() float64 {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.totalWeightLocked()
}

func (inv *Inventory) TotalVolume() float64 {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.totalVolumeLocked()
}

func (inv *Inventory) StackCount() int {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return len(inv.stacks)
}

func (inv *Inventory) IsEmpty() bool { return inv.StackCount() == 0 }

func (inv *Inventory) IsFull() bool { return inv.Remaining() <= 0 }

// Remaining reports the strategy's headroom in [0,1].
func (inv *Inventory) Remaining() float64 {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.strategy.Remaining(inv)
}

func (inv *Inventory) Capacity() CapacityInfo {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.strategy.Info(inv)
}

func (inv *Inventory) GetQuantity(kind resource.Kind) float64 {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.getQuantityLocked(kind)
}

func (inv *Inventory) HasResource(kind resource.Kind, quantity float64) bool {
	return inv.GetQuantity(kind) >= quantity
}

// Kinds returns the distinct resource kinds present, in first-seen
// order.
func (inv *Inventory) Kinds() []resource.Kind {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	seen := make(map[resource.Kind]struct{}, len(inv.stacks))
	var out []resource.Kind
	for _, st := range inv.stacks {
		if _, ok := seen[st.Kind]; ok {
			continue
		}
		seen[st.Kind] = struct{}{}
		out = append(out, st.Kind)
	}
	return out
}

// Summary maps every present kind to its total quantity.
func (inv *Inventory) Summary() map[resource.Kind]float64 {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	out := make(map[resource.Kind]float64, len(inv.stacks))
	for _, st := range inv.stacks {
		out[st.Kind] += st.Quantity
	}
	return out
}

// Stacks returns a copy of the stack list in insertion order.
func (inv *Inventory) Stacks() []resource.Stack {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	out := make([]resource.Stack, len(inv.stacks))
	copy(out, inv.stacks)
	return out
}

// --- Mutations ---

// Add admits a stack. It fails without mutating when the capacity
// strategy rejects the candidate. An admitted stack pools into the
// first compatible stack that has room for the whole quantity,
// otherwise it is appended as a new stack. The ItemAdded notification
// carries the stack as given, not the merged result.
func (inv *Inventory) Add(stack resource.Stack) bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.addLocked(stack)
}

// Remove takes quantity of kind out of the inventory, consuming stacks
// in insertion order and splitting the last one when needed. It fails
// without mutating when the inventory holds less than quantity. The
// returned aggregate carries the identity of the first consumed stack;
// provenance of later stacks is not preserved.
func (inv *Inventory) Remove(kind resource.Kind, quantity float64) (resource.Stack, bool) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.removeLocked(kind, quantity)
}

// Clear drops every stack.
func (inv *Inventory) Clear() {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.stacks = nil
	inv.notifyLocked(EventCleared, nil)
}

// Consolidate pools every group of compatible stacks into one stack,
// keeping first-appearance order. Defragmentation only; totals are
// unchanged.
func (inv *Inventory) Consolidate() {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if len(inv.stacks) < 2 {
		return
	}
	order := make([]resource.Stack, 0, len(inv.stacks))
	totals := make(map[resource.Stack]float64, len(inv.stacks))
	for _, st := range inv.stacks {
		id := st.Identity()
		if _, seen := totals[id]; !seen {
			order = append(order, id)
		}
		totals[id] += st.Quantity
	}
	merged := make([]resource.Stack, 0, len(order))
	for _, id := range order {
		st := id
		st.Quantity = totals[id]
		merged = append(merged, st)
	}
	inv.stacks = merged
}

// --- Observers ---

func (inv *Inventory) AttachObserver(o Observer) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	for _, existing := range inv.observers {
		if existing == o {
			return
		}
	}
	inv.observers = append(inv.observers, o)
}

func (inv *Inventory) DetachObserver(o Observer) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	for i, existing := range inv.observers {
		if existing == o {
			inv.observers = append(inv.observers[:i], inv.observers[i+1:]...)
			return
		}
	}
}

// --- Locked internals ---

func (inv *Inventory) totalWeightLocked() float64 {
	total := 0.0
	for _, st := range inv.stacks {
		total += st.TotalWeight()
	}
	return total
}

func (inv *Inventory) totalVolumeLocked() float64 {
	total := 0.0
	for _, st := range inv.stacks {
		total += st.TotalVolume()
	}
	return total
}

func (inv *Inventory) getQuantityLocked(kind resource.Kind) float64 {
	total := 0.0
	for _, st := range inv.stacks {
		if st.Kind == kind {
			total += st.Quantity
		}
	}
	return total
}

// mergeTarget returns the index of the first stack the candidate pools
// into, or -1. Add and SlotBased.CanAdd must agree on this search.
func mergeTarget(stacks []resource.Stack, candidate resource.Stack) int {
	for i, existing := range stacks {
		if existing.CompatibleWith(candidate) && existing.CanTake(candidate.Quantity) {
			return i
		}
	}
	return -1
}

func (inv *Inventory) addLocked(stack resource.Stack) bool {
	if !inv.strategy.CanAdd(inv, stack) {
		return false
	}
	if i := mergeTarget(inv.stacks, stack); i >= 0 {
		// mergeTarget verified room, so Merge cannot overflow here.
		merged, _ := inv.stacks[i].Merge(stack)
		inv.stacks[i] = merged
	} else {
		inv.stacks = append(inv.stacks, stack)
	}
	inv.notifyLocked(EventItemAdded, &stack)
	return true
}

func (inv *Inventory) removeLocked(kind resource.Kind, quantity float64) (resource.Stack, bool) {
	if inv.getQuantityLocked(kind) < quantity {
		return resource.Stack{}, false
	}

	remaining := quantity
	var taken []resource.Stack
	i := 0
	for i < len(inv.stacks) && remaining > 0 {
		st := inv.stacks[i]
		if st.Kind != kind {
			i++
			continue
		}
		if st.Quantity <= remaining {
			taken = append(taken, st)
			inv.stacks = append(inv.stacks[:i], inv.stacks[i+1:]...)
			remaining -= st.Quantity
			continue
		}
		keep, part, _ := st.Split(remaining)
		inv.stacks[i] = keep
		taken = append(taken, part)
		remaining = 0
	}
	if len(taken) == 0 {
		return resource.Stack{}, false
	}

	total := 0.0
	for _, st := range taken {
		total += st.Quantity
	}
	// The aggregate inherits the first consumed stack's identity;
	// removing across stacks with mixed metadata drops the later
	// provenance.
	out := taken[0]
	out.Quantity = total
	inv.notifyLocked(EventItemRemoved, &out)
	return out, true
}

func (inv *Inventory) notifyLocked(event Event, stack *resource.Stack) {
	for _, o := range inv.observers {
		o.OnInventoryChanged(inv, event, stack)
	}
}

// sortedKinds returns map keys in ascending order so multi-kind
// operations run deterministically.
func sortedKinds(m map[resource.Kind]float64) []resource.Kind {
	kinds := make([]resource.Kind, 0, len(m))
	for k := range m {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
