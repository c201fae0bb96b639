package inventory

import "sync"

// AccessPolicy decides which agents may use a stockpile.
type AccessPolicy interface {
	CanDeposit(agentID string) bool
	CanWithdraw(agentID string) bool
	Name() string
}

// PublicAccess admits everyone.
type PublicAccess struct{}

func (PublicAccess) CanDeposit(string) bool  { return true }
func (PublicAccess) CanWithdraw(string) bool { return true }
func (PublicAccess) Name() string            { return "public" }

// PrivateAccess admits only the owner.
type PrivateAccess struct {
	OwnerID string
}

func (p PrivateAccess) CanDeposit(agentID string) bool  { return agentID == p.OwnerID }
func (p PrivateAccess) CanWithdraw(agentID string) bool { return agentID == p.OwnerID }
func (p PrivateAccess) Name() string                    { return "private" }

// FactionAccess admits the members of one faction. Membership can
// change while the stockpile is in use.
type FactionAccess struct {
	FactionID string

	mu      sync.Mutex
	members map[string]struct{}
}

// NewFactionAccess builds a policy admitting the given members.
func NewFactionAccess(factionID string, members ...string) *FactionAccess {
	a := &FactionAccess{FactionID: factionID, members: make(map[string]struct{}, len(members))}
	for _, m := range members {
		a.members[m] = struct{}{}
	}
	return a
}

func (a *FactionAccess) AddMember(agentID string) {
	a.mu.Lock()
	a.members[agentID] = struct{}{}
	a.mu.Unlock()
}

func (a *FactionAccess) RemoveMember(agentID string) {
	a.mu.Lock()
	delete(a.members, agentID)
	a.mu.Unlock()
}

func (a *FactionAccess) isMember(agentID string) bool {
	a.mu.Lock()
	_, ok := a.members[agentID]
	a.mu.Unlock()
	return ok
}

func (a *FactionAccess) CanDeposit(agentID string) bool  { return a.isMember(agentID) }
func (a *FactionAccess) CanWithdraw(agentID string) bool { return a.isMember(agentID) }
func (a *FactionAccess) Name() string                    { return "faction:" + a.FactionID }
