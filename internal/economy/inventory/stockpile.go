package inventory

import (
	"sync"

	"github.com/google/uuid"

	"aisociety.ai/internal/economy/resource"
)

// Position locates a stockpile in the world.
type Position struct {
	X float64
	Y float64
}

// Transaction is one deposit or withdrawal against a stockpile.
type Transaction struct {
	AgentID   string
	Kind      resource.Kind
	Quantity  float64
	Timestamp float64 // simulation time, supplied by the caller
	IsDeposit bool
}

// Stockpile is a shared inventory at a fixed position, guarded by an
// access policy and keeping a full transaction history.
type Stockpile struct {
	id       string
	name     string
	position Position
	access   AccessPolicy

	mu           sync.Mutex
	inv          *Inventory
	transactions []Transaction
}

// NewStockpile builds a stockpile. An empty id gets a generated one, a
// nil strategy stores without limit and a nil policy admits everyone.
func NewStockpile(id, name string, pos Position, strategy Strategy, access AccessPolicy) *Stockpile {
	if id == "" {
		id = uuid.NewString()
	}
	if name == "" {
		name = "Stockpile"
	}
	if access == nil {
		access = PublicAccess{}
	}
	return &Stockpile{
		id:       id,
		name:     name,
		position: pos,
		access:   access,
		inv:      New(id, strategy, name+" Storage"),
	}
}

func (s *Stockpile) ID() string         { return s.id }
func (s *Stockpile) Name() string       { return s.name }
func (s *Stockpile) Position() Position { return s.position }
func (s *Stockpile) Access() string     { return s.access.Name() }

// Deposit stores the stack on behalf of an agent. The access policy is
// consulted before the inventory is touched.
func (s *Stockpile) Deposit(agentID string, stack resource.Stack, at float64) TransferResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.access.CanDeposit(agentID) {
		return TransferResult{Failure: FailureAccessDenied}
	}
	if !s.inv.Add(stack) {
		return TransferResult{Failure: FailureDestinationFull}
	}
	s.transactions = append(s.transactions, Transaction{
		AgentID:   agentID,
		Kind:      stack.Kind,
		Quantity:  stack.Quantity,
		Timestamp: at,
		IsDeposit: true,
	})
	return TransferResult{Success: true, Transferred: stack.Quantity}
}

// Withdraw takes quantity of kind out on behalf of an agent.
func (s *Stockpile) Withdraw(agentID string, kind resource.Kind, quantity float64, at float64) (resource.Stack, TransferResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.access.CanWithdraw(agentID) {
		return resource.Stack{}, TransferResult{Failure: FailureAccessDenied}
	}
	stack, ok := s.inv.Remove(kind, quantity)
	if !ok {
		return resource.Stack{}, TransferResult{Failure: FailureInsufficientResources}
	}
	s.transactions = append(s.transactions, Transaction{
		AgentID:   agentID,
		Kind:      kind,
		Quantity:  quantity,
		Timestamp: at,
		IsDeposit: false,
	})
	return stack, TransferResult{Success: true, Transferred: quantity}
}

// Quantity reports how much of kind is stored.
func (s *Stockpile) Quantity(kind resource.Kind) float64 { return s.inv.GetQuantity(kind) }

// Summary reports stored totals per kind.
func (s *Stockpile) Summary() map[resource.Kind]float64 { return s.inv.Summary() }

// Capacity reports the storage strategy's view of the stockpile.
func (s *Stockpile) Capacity() CapacityInfo { return s.inv.Capacity() }

func (s *Stockpile) IsEmpty() bool { return s.inv.IsEmpty() }

// History returns transactions, oldest first, filtered by agent and
// kind when non-empty. A positive limit keeps only the most recent
// matches.
func (s *Stockpile) History(agentID string, kind resource.Kind, limit int) []Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Transaction
	for _, tx := range s.transactions {
		if agentID != "" && tx.AgentID != agentID {
			continue
		}
		if kind != "" && tx.Kind != kind {
			continue
		}
		out = append(out, tx)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// DepositsBy totals what the agent has put in, per kind.
func (s *Stockpile) DepositsBy(agentID string) map[resource.Kind]float64 {
	return s.totalsBy(agentID, true)
}

// WithdrawalsBy totals what the agent has taken out, per kind.
func (s *Stockpile) WithdrawalsBy(agentID string) map[resource.Kind]float64 {
	return s.totalsBy(agentID, false)
}

func (s *Stockpile) totalsBy(agentID string, deposits bool) map[resource.Kind]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	totals := make(map[resource.Kind]float64)
	for _, tx := range s.transactions {
		if tx.AgentID == agentID && tx.IsDeposit == deposits {
			totals[tx.Kind] += tx.Quantity
		}
	}
	return totals
}

// NetContribution is deposits minus withdrawals per kind for one agent.
// Net takers go negative.
func (s *Stockpile) NetContribution(agentID string) map[resource.Kind]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	net := make(map[resource.Kind]float64)
	for _, tx := range s.transactions {
		if tx.AgentID != agentID {
			continue
		}
		if tx.IsDeposit {
			net[tx.Kind] += tx.Quantity
		} else {
			net[tx.Kind] -= tx.Quantity
		}
	}
	return net
}
