package inventory

import (
	"errors"
	"fmt"
	"strings"

	"aisociety.ai/internal/economy/resource"
)

// Failure classifies why a transfer was refused.
type Failure string

const (
	FailureInsufficientResources Failure = "insufficient_resources"
	FailureDestinationFull       Failure = "destination_full"
	FailureRemovalFailed         Failure = "removal_failed"
	FailureAdditionFailed        Failure = "addition_failed"
	FailureAccessDenied          Failure = "access_denied"
)

// TransferResult reports one transfer. Failure is empty on success.
type TransferResult struct {
	Success     bool
	Failure     Failure
	Transferred float64
}

// TradeResult reports a two-party trade. Err is nil on success; see
// ErrTradeRejected, ReversedTradeError and StrandedTradeError for the
// failure surfaces.
type TradeResult struct {
	Success bool
	Err     error
}

// ErrTradeRejected means a precondition failed and nothing was moved.
var ErrTradeRejected = errors.New("trade rejected")

// ReversedTradeError means a leg failed mid-trade and every completed
// leg was transferred back: both parties are as they were before the
// call.
type ReversedTradeError struct {
	FromOwner string
	ToOwner   string
	Kind      resource.Kind
	Quantity  float64
	Failure   Failure
}

func (e *ReversedTradeError) Error() string {
	return fmt.Sprintf("trade leg %s->%s %v %s failed (%s); completed legs reversed",
		e.FromOwner, e.ToOwner, e.Quantity, e.Kind, e.Failure)
}

// Movement records one applied leg, used to report stranded state.
type Movement struct {
	FromOwner string
	ToOwner   string
	Kind      resource.Kind
	Quantity  float64
}

// StrandedTradeError means a leg failed and at least one compensating
// transfer also failed: the listed movements are still applied and the
// caller must reconcile them.
type StrandedTradeError struct {
	Cause    error
	Stranded []Movement
}

func (e *StrandedTradeError) Error() string {
	parts := make([]string, 0, len(e.Stranded))
	for _, m := range e.Stranded {
		parts = append(parts, fmt.Sprintf("%v %s %s->%s", m.Quantity, m.Kind, m.FromOwner, m.ToOwner))
	}
	return fmt.Sprintf("trade failed and compensation left state partially applied (%s): %v",
		strings.Join(parts, ", "), e.Cause)
}

func (e *StrandedTradeError) Unwrap() error { return e.Cause }

// Transfer moves quantity of kind from src to dst. The operation is
// atomic: on any failure both inventories are exactly as they were.
// Both locks are held for the full duration, acquired in creation
// order.
func Transfer(src, dst *Inventory, kind resource.Kind, quantity float64) TransferResult {
	unlock := lockBoth(src, dst)
	defer unlock()
	return transferLocked(src, dst, kind, quantity)
}

func transferLocked(src, dst *Inventory, kind resource.Kind, quantity float64) TransferResult {
	if src.getQuantityLocked(kind) < quantity {
		return TransferResult{Failure: FailureInsufficientResources}
	}
	stack, ok := src.removeLocked(kind, quantity)
	if !ok {
		return TransferResult{Failure: FailureRemovalFailed}
	}
	if dst.addLocked(stack) {
		return TransferResult{Success: true, Transferred: quantity}
	}
	// The stack just left src, so putting it straight back succeeds.
	src.addLocked(stack)
	return TransferResult{Failure: FailureDestinationFull}
}

// Trade atomically exchanges aGives (a -> b) against bGives (b -> a).
// Both parties must hold everything they promise before anything moves.
// If a leg fails, completed legs are compensated by transferring them
// back; compensation is best effort, and a compensating transfer that
// itself fails leaves resources where they landed (StrandedTradeError).
// Both locks are held across the forward and compensation paths, so no
// observer sees a half-reversed state.
func Trade(a, b *Inventory, aGives, bGives map[resource.Kind]float64) TradeResult {
	unlock := lockBoth(a, b)
	defer unlock()

	if kind, qty, short := shortfallLocked(a, aGives); short {
		return TradeResult{Err: fmt.Errorf("%w: %s lacks %v %s", ErrTradeRejected, a.ownerID, qty, kind)}
	}
	if kind, qty, short := shortfallLocked(b, bGives); short {
		return TradeResult{Err: fmt.Errorf("%w: %s lacks %v %s", ErrTradeRejected, b.ownerID, qty, kind)}
	}

	type leg struct {
		from, to *Inventory
		kind     resource.Kind
		qty      float64
	}
	var done []leg

	execute := func(from, to *Inventory, gives map[resource.Kind]float64) error {
		for _, kind := range sortedKinds(gives) {
			qty := gives[kind]
			res := transferLocked(from, to, kind, qty)
			if !res.Success {
				return &ReversedTradeError{
					FromOwner: from.ownerID,
					ToOwner:   to.ownerID,
					Kind:      kind,
					Quantity:  qty,
					Failure:   res.Failure,
				}
			}
			done = append(done, leg{from: from, to: to, kind: kind, qty: qty})
		}
		return nil
	}

	err := execute(a, b, aGives)
	if err == nil {
		err = execute(b, a, bGives)
	}
	if err == nil {
		return TradeResult{Success: true}
	}

	// Compensate completed legs in execution order. A reversal can
	// itself be refused (capacity reshuffled by later legs); those
	// movements stay applied and are reported, not retried.
	var stranded []Movement
	for _, l := range done {
		if res := transferLocked(l.to, l.from, l.kind, l.qty); !res.Success {
			stranded = append(stranded, Movement{
				FromOwner: l.from.ownerID,
				ToOwner:   l.to.ownerID,
				Kind:      l.kind,
				Quantity:  l.qty,
			})
		}
	}
	if len(stranded) > 0 {
		return TradeResult{Err: &StrandedTradeError{Cause: err, Stranded: stranded}}
	}
	return TradeResult{Err: err}
}

// SplitTransfer divides quantity evenly across destinations and reports
// per-destination results keyed by owner id. Each leg is atomic on its
// own; earlier successful legs stay applied when a later one fails.
func SplitTransfer(src *Inventory, dests []*Inventory, kind resource.Kind, quantity float64) map[string]TransferResult {
	results := make(map[string]TransferResult, len(dests))
	if len(dests) == 0 {
		return results
	}
	per := quantity / float64(len(dests))
	for _, dst := range dests {
		results[dst.ownerID] = Transfer(src, dst, kind, per)
	}
	return results
}

// shortfallLocked returns the first promised kind inv cannot cover.
func shortfallLocked(inv *Inventory, gives map[resource.Kind]float64) (resource.Kind, float64, bool) {
	for _, kind := range sortedKinds(gives) {
		if inv.getQuantityLocked(kind) < gives[kind] {
			return kind, gives[kind], true
		}
	}
	return "", 0, false
}

// lockBoth acquires both inventory locks in creation order and returns
// the matching unlock.
func lockBoth(a, b *Inventory) func() {
	if a == b {
		a.mu.Lock()
		return a.mu.Unlock
	}
	first, second := a, b
	if b.seq < a.seq {
		first, second = b, a
	}
	first.mu.Lock()
	second.mu.Lock()
	return func() {
		second.mu.Unlock()
		first.mu.Unlock()
	}
}
