package inventory

import (
	"testing"

	"aisociety.ai/internal/economy/resource"
)

func TestUnlimitedAdmitsEverything(t *testing.T) {
	inv := New("a1", nil, "")
	for i := 0; i < 100; i++ {
		if !inv.Add(resource.Stack{Kind: resource.Stone, Quantity: 1e6, Metadata: string(rune('a' + i))}) {
			t.Fatalf("add %d refused", i)
		}
	}
	if got := inv.Remaining(); got != 1 {
		t.Fatalf("remaining: got %v want 1", got)
	}
	if got := inv.Capacity().Kind; got != "unlimited" {
		t.Fatalf("capacity kind: got %q", got)
	}
}

func TestSlotBasedMergePoolsWithoutConsumingSlot(t *testing.T) {
	inv := New("a1", SlotBased{MaxSlots: 1}, "")
	if !inv.Add(resource.Stack{Kind: resource.Wood, Quantity: 5, MaxStackSize: 10}) {
		t.Fatalf("first add refused")
	}

	// Pools into the existing stack, so the full slot does not matter.
	if !inv.Add(resource.Stack{Kind: resource.Wood, Quantity: 3, MaxStackSize: 10}) {
		t.Fatalf("mergeable add refused")
	}
	if got := inv.StackCount(); got != 1 {
		t.Fatalf("stack count: got %d want 1", got)
	}
	if got := inv.GetQuantity(resource.Wood); got != 8 {
		t.Fatalf("wood: got %v want 8", got)
	}

	// No room left in the stack and no free slot.
	if inv.Add(resource.Stack{Kind: resource.Wood, Quantity: 6, MaxStackSize: 10}) {
		t.Fatalf("overfull merge admitted")
	}
	if inv.Add(resource.Stack{Kind: resource.Stone, Quantity: 1}) {
		t.Fatalf("new kind admitted with no free slot")
	}
}

func TestSlotBasedZeroValueAdmitsNothing(t *testing.T) {
	inv := New("a1", SlotBased{}, "")
	if inv.Add(resource.Stack{Kind: resource.Wood, Quantity: 1}) {
		t.Fatalf("zero-slot inventory admitted a stack")
	}
	if got := inv.Remaining(); got != 0 {
		t.Fatalf("remaining: got %v want 0", got)
	}
}

func TestSlotBasedRemaining(t *testing.T) {
	inv := New("a1", SlotBased{MaxSlots: 4}, "")
	inv.Add(resource.Stack{Kind: resource.Wood, Quantity: 1})
	if got := inv.Remaining(); got != 0.75 {
		t.Fatalf("remaining: got %v want 0.75", got)
	}
	info := inv.Capacity()
	if info.Kind != "slots" || info.Used != 1 || info.Max != 4 || info.Percentage != 25 {
		t.Fatalf("info: got %+v", info)
	}
}

func TestWeightBasedExactFitAdmitted(t *testing.T) {
	inv := New("a1", WeightBased{MaxWeight: 16}, "")
	heavy := resource.Stack{Kind: resource.Stone, Quantity: 8, WeightPerUnit: 1}
	if !inv.Add(heavy) {
		t.Fatalf("first half refused")
	}
	if !inv.Add(heavy) {
		t.Fatalf("exact fit refused")
	}
	if inv.Add(resource.Stack{Kind: resource.Stone, Quantity: 1, WeightPerUnit: 1}) {
		t.Fatalf("overweight stack admitted")
	}
	if !inv.IsFull() {
		t.Fatalf("expected full inventory")
	}
	// Weightless stacks always fit.
	if !inv.Add(resource.Stack{Kind: resource.Gold, Quantity: 50}) {
		t.Fatalf("weightless stack refused")
	}
}

func TestVolumeBasedRejectsOverflow(t *testing.T) {
	inv := New("a1", VolumeBased{MaxVolume: 8}, "")
	if !inv.Add(resource.Stack{Kind: resource.Water, Quantity: 6, VolumePerUnit: 1}) {
		t.Fatalf("add refused")
	}
	if inv.Add(resource.Stack{Kind: resource.Water, Quantity: 3, VolumePerUnit: 1}) {
		t.Fatalf("overflow admitted")
	}
	if got := inv.Remaining(); got != 0.25 {
		t.Fatalf("remaining: got %v want 0.25", got)
	}
}

func TestCompositeRequiresEveryStrategy(t *testing.T) {
	inv := New("a1", Composite{Strategies: []Strategy{
		SlotBased{MaxSlots: 4},
		WeightBased{MaxWeight: 16},
	}}, "")
	if !inv.Add(resource.Stack{Kind: resource.Stone, Quantity: 12, WeightPerUnit: 1}) {
		t.Fatalf("add refused")
	}

	// Slots are free but the weight limit vetoes.
	if inv.Add(resource.Stack{Kind: resource.Wood, Quantity: 8, WeightPerUnit: 1}) {
		t.Fatalf("composite admitted past weight limit")
	}
	if got := inv.Remaining(); got != 0.25 {
		t.Fatalf("remaining: got %v want 0.25", got)
	}

	info := inv.Capacity()
	if info.Kind != "composite" {
		t.Fatalf("kind: got %q", info.Kind)
	}
	if len(info.Strategies) != 2 {
		t.Fatalf("sub-strategies: got %d want 2", len(info.Strategies))
	}
	if info.MostRestrictive != "weight" {
		t.Fatalf("most restrictive: got %q want weight", info.MostRestrictive)
	}
	if info.Percentage != 75 {
		t.Fatalf("percentage: got %v want 75", info.Percentage)
	}
}

func TestCompositeEmptyAdmitsNothing(t *testing.T) {
	inv := New("a1", Composite{}, "")
	if inv.Add(resource.Stack{Kind: resource.Wood, Quantity: 1}) {
		t.Fatalf("empty composite admitted a stack")
	}
	if got := inv.Remaining(); got != 0 {
		t.Fatalf("remaining: got %v want 0", got)
	}
}
