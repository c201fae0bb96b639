// Package resource defines the value types moved between inventories:
// resource kinds and immutable stacks of them.
package resource

import (
	"errors"
	"fmt"
)

// Kind identifies a fungible resource. The set is open: anything the
// base price table names is tradeable, these are just the built-ins.
type Kind string

const (
	Food  Kind = "food"
	Wood  Kind = "wood"
	Stone Kind = "stone"
	Metal Kind = "metal"
	Gold  Kind = "gold"
	Water Kind = "water"
)

var ErrInvalidStack = errors.New("invalid stack")

// Stack is a quantity of one resource kind plus the physical parameters
// that decide whether two stacks pool together. Stacks are values:
// Merge/Split/WithQuantity return new stacks and never mutate the
// receiver, so a stack handed to an inventory is stale the moment the
// inventory accepts it.
type Stack struct {
	Kind          Kind
	Quantity      float64
	Metadata      string  // opaque tag, part of the merge identity
	MaxStackSize  float64 // 0 = unlimited
	WeightPerUnit float64
	VolumePerUnit float64
}

// New returns a validated stack with no metadata and no stacking limit.
func New(kind Kind, quantity float64) (Stack, error) {
	s := Stack{Kind: kind, Quantity: quantity}
	if err := s.Validate(); err != nil {
		return Stack{}, err
	}
	return s, nil
}

func (s Stack) Validate() error {
	if s.Quantity < 0 {
		return fmt.Errorf("%w: negative quantity %v", ErrInvalidStack, s.Quantity)
	}
	if s.MaxStackSize < 0 {
		return fmt.Errorf("%w: negative max stack size %v", ErrInvalidStack, s.MaxStackSize)
	}
	if s.MaxStackSize > 0 && s.Quantity > s.MaxStackSize {
		return fmt.Errorf("%w: quantity %v exceeds max stack size %v", ErrInvalidStack, s.Quantity, s.MaxStackSize)
	}
	if s.WeightPerUnit < 0 || s.VolumePerUnit < 0 {
		return fmt.Errorf("%w: negative weight or volume per unit", ErrInvalidStack)
	}
	return nil
}

func (s Stack) TotalWeight() float64 { return s.Quantity * s.WeightPerUnit }
func (s Stack) TotalVolume() float64 { return s.Quantity * s.VolumePerUnit }

func (s Stack) IsEmpty() bool { return s.Quantity <= 0 }

func (s Stack) IsFull() bool {
	if s.MaxStackSize == 0 {
		return false
	}
	return s.Quantity >= s.MaxStackSize
}

// CanTake reports whether amount more would still fit under MaxStackSize.
func (s Stack) CanTake(amount float64) bool {
	if s.MaxStackSize == 0 {
		return true
	}
	return s.Quantity+amount <= s.MaxStackSize
}

func (s Stack) CanGive(amount float64) bool { return s.Quantity >= amount }

// CompatibleWith reports whether two stacks pool together. All five
// identity fields must match; quantity is the only thing that differs
// between compatible stacks.
func (s Stack) CompatibleWith(o Stack) bool {
	return s.Kind == o.Kind &&
		s.Metadata == o.Metadata &&
		s.MaxStackSize == o.MaxStackSize &&
		s.WeightPerUnit == o.WeightPerUnit &&
		s.VolumePerUnit == o.VolumePerUnit
}

// Identity is the stack with its quantity zeroed, usable as a map key
// when grouping compatible stacks.
func (s Stack) Identity() Stack {
	s.Quantity = 0
	return s
}

// WithQuantity returns a copy holding quantity instead, revalidated
// against the stack's own limits.
func (s Stack) WithQuantity(quantity float64) (Stack, error) {
	s.Quantity = quantity
	if err := s.Validate(); err != nil {
		return Stack{}, err
	}
	return s, nil
}

// Split carves amount off the stack and returns (remaining, taken).
// Splitting the whole quantity is allowed and leaves an empty remainder.
func (s Stack) Split(amount float64) (remaining, taken Stack, err error) {
	if amount < 0 {
		return Stack{}, Stack{}, fmt.Errorf("%w: cannot split negative amount", ErrInvalidStack)
	}
	if amount > s.Quantity {
		return Stack{}, Stack{}, fmt.Errorf("%w: cannot split %v from stack of %v", ErrInvalidStack, amount, s.Quantity)
	}
	remaining = s
	remaining.Quantity = s.Quantity - amount
	taken = s
	taken.Quantity = amount
	return remaining, taken, nil
}

// Merge pools two compatible stacks into one. Fails if the stacks differ
// in identity or the sum would exceed MaxStackSize.
func (s Stack) Merge(o Stack) (Stack, error) {
	if !s.CompatibleWith(o) {
		return Stack{}, fmt.Errorf("%w: cannot merge incompatible stacks (%s/%s)", ErrInvalidStack, s.Kind, o.Kind)
	}
	sum := s.Quantity + o.Quantity
	if s.MaxStackSize > 0 && sum > s.MaxStackSize {
		return Stack{}, fmt.Errorf("%w: merged quantity %v exceeds max stack size %v", ErrInvalidStack, sum, s.MaxStackSize)
	}
	s.Quantity = sum
	return s, nil
}

func (s Stack) String() string {
	return fmt.Sprintf("%s x%.1f", s.Kind, s.Quantity)
}
