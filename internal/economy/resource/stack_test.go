package resource

import (
	"errors"
	"testing"
)

func TestNewRejectsNegativeQuantity(t *testing.T) {
	if _, err := New(Food, -1); !errors.Is(err, ErrInvalidStack) {
		t.Fatalf("expected ErrInvalidStack, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		s    Stack
		ok   bool
	}{
		{"zero value", Stack{Kind: Food}, true},
		{"unlimited large", Stack{Kind: Food, Quantity: 1e9}, true},
		{"at max", Stack{Kind: Food, Quantity: 100, MaxStackSize: 100}, true},
		{"over max", Stack{Kind: Food, Quantity: 101, MaxStackSize: 100}, false},
		{"negative max", Stack{Kind: Food, MaxStackSize: -1}, false},
		{"negative weight", Stack{Kind: Food, WeightPerUnit: -0.5}, false},
		{"negative volume", Stack{Kind: Food, VolumePerUnit: -0.5}, false},
	}
	for _, tc := range cases {
		err := tc.s.Validate()
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestTotals(t *testing.T) {
	s := Stack{Kind: Stone, Quantity: 4, WeightPerUnit: 2.5, VolumePerUnit: 0.5}
	if w := s.TotalWeight(); w != 10 {
		t.Fatalf("expected total weight 10, got %v", w)
	}
	if v := s.TotalVolume(); v != 2 {
		t.Fatalf("expected total volume 2, got %v", v)
	}
}

func TestSplit(t *testing.T) {
	s := Stack{Kind: Food, Quantity: 100}
	remaining, taken, err := s.Split(30)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if remaining.Quantity != 70 || taken.Quantity != 30 {
		t.Fatalf("expected 70/30, got %v/%v", remaining.Quantity, taken.Quantity)
	}
	if taken.Kind != Food {
		t.Fatalf("taken stack changed kind: %q", taken.Kind)
	}

	// Splitting everything leaves an empty remainder.
	remaining, taken, err = s.Split(100)
	if err != nil {
		t.Fatalf("split all: %v", err)
	}
	if !remaining.IsEmpty() || taken.Quantity != 100 {
		t.Fatalf("expected empty remainder, got %v/%v", remaining.Quantity, taken.Quantity)
	}

	if _, _, err := s.Split(101); err == nil {
		t.Fatal("expected error splitting more than held")
	}
	if _, _, err := s.Split(-1); err == nil {
		t.Fatal("expected error splitting negative amount")
	}
}

func TestMerge(t *testing.T) {
	a := Stack{Kind: Wood, Quantity: 40, MaxStackSize: 100}
	b := Stack{Kind: Wood, Quantity: 50, MaxStackSize: 100}
	merged, err := a.Merge(b)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if merged.Quantity != 90 {
		t.Fatalf("expected 90, got %v", merged.Quantity)
	}

	// Original values are untouched.
	if a.Quantity != 40 || b.Quantity != 50 {
		t.Fatalf("merge mutated inputs: %v/%v", a.Quantity, b.Quantity)
	}

	c := Stack{Kind: Stone, Quantity: 10, MaxStackSize: 100}
	if _, err := a.Merge(c); err == nil {
		t.Fatal("expected error merging different kinds")
	}

	d := Stack{Kind: Wood, Quantity: 70, MaxStackSize: 100}
	if _, err := a.Merge(d); err == nil {
		t.Fatal("expected error merging past max stack size")
	}
}

func TestCompatibleWithChecksAllIdentityFields(t *testing.T) {
	base := Stack{Kind: Metal, Quantity: 5, Metadata: "refined", MaxStackSize: 50, WeightPerUnit: 2, VolumePerUnit: 1}
	same := base
	same.Quantity = 1
	if !base.CompatibleWith(same) {
		t.Fatal("expected stacks differing only in quantity to be compatible")
	}

	variants := []func(*Stack){
		func(s *Stack) { s.Kind = Gold },
		func(s *Stack) { s.Metadata = "raw" },
		func(s *Stack) { s.MaxStackSize = 60 },
		func(s *Stack) { s.WeightPerUnit = 3 },
		func(s *Stack) { s.VolumePerUnit = 2 },
	}
	for i, mutate := range variants {
		v := base
		mutate(&v)
		if base.CompatibleWith(v) {
			t.Fatalf("variant %d: expected incompatible", i)
		}
	}
}

func TestCanTakeUnlimited(t *testing.T) {
	s := Stack{Kind: Water, Quantity: 1e6}
	if !s.CanTake(1e9) {
		t.Fatal("unlimited stack refused more")
	}
	limited := Stack{Kind: Water, Quantity: 90, MaxStackSize: 100}
	if !limited.CanTake(10) {
		t.Fatal("expected room for 10")
	}
	if limited.CanTake(10.5) {
		t.Fatal("expected no room for 10.5")
	}
}

func TestWithQuantityRevalidates(t *testing.T) {
	s := Stack{Kind: Food, Quantity: 10, MaxStackSize: 20}
	bigger, err := s.WithQuantity(20)
	if err != nil || bigger.Quantity != 20 {
		t.Fatalf("expected quantity 20, got %v (%v)", bigger.Quantity, err)
	}
	if _, err := s.WithQuantity(21); err == nil {
		t.Fatal("expected error exceeding max stack size")
	}
	if _, err := s.WithQuantity(-1); err == nil {
		t.Fatal("expected error on negative quantity")
	}
}
