package permission

import (
	"errors"
	"sync"
)

// Grants defines a public type used by ward APIs.
//
// Grants composes registered actions into per-role masks. Like the registry
// it feeds from, it is built during initialization, frozen, and then read
// concurrently without synchronization cost beyond an RLock.
type Grants struct {
	registry *Registry

	mu     sync.RWMutex
	roles  map[string]Mask64
	frozen bool
}

// NewGrants describes the newgrants operation and its observable behavior.
//
// NewGrants does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewGrants(registry *Registry) *Grants {
	return &Grants{
		registry: registry,
		roles:    make(map[string]Mask64),
	}
}

// Grant describes the grant operation and its observable behavior.
//
// Grant assigns the named actions to a role. Every action must already be
// registered; an unknown action is an error rather than a silently empty
// grant.
//
// Grant may return an error when input validation, dependency calls, or security checks fail.
func (g *Grants) Grant(role string, actions []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.frozen {
		return errors.New("grants frozen")
	}

	if role == "" {
		return errors.New("role name empty")
	}

	if _, exists := g.roles[role]; exists {
		return errors.New("role already granted")
	}

	var mask Mask64
	for _, action := range actions {
		bit, ok := g.registry.Bit(action)
		if !ok {
			return errors.New("action not registered: " + action)
		}
		mask.Set(bit)
	}

	g.roles[role] = mask
	return nil
}

// GrantAll describes the grantall operation and its observable behavior.
//
// GrantAll assigns the reserved admin bit to a role, passing every check
// without enumerating actions. The registry must have been built with
// admin-bit reservation.
//
// GrantAll may return an error when input validation, dependency calls, or security checks fail.
func (g *Grants) GrantAll(role string) error {
	bit, ok := g.registry.AdminBit()
	if !ok {
		return errors.New("registry has no reserved admin bit")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.frozen {
		return errors.New("grants frozen")
	}
	if role == "" {
		return errors.New("role name empty")
	}
	if _, exists := g.roles[role]; exists {
		return errors.New("role already granted")
	}

	var mask Mask64
	mask.Set(bit)
	g.roles[role] = mask
	return nil
}

// Allows reports whether the role may perform the named action. Unknown
// roles and unknown actions are both denied.
func (g *Grants) Allows(role string, action string) bool {
	bit, ok := g.registry.Bit(action)
	if !ok {
		return false
	}

	g.mu.RLock()
	mask, ok := g.roles[role]
	g.mu.RUnlock()
	if !ok {
		return false
	}

	_, adminReserved := g.registry.AdminBit()
	return mask.Has(bit, adminReserved)
}

// Mask returns the role's composed mask, or false for an unknown role.
func (g *Grants) Mask(role string) (Mask64, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	mask, ok := g.roles[role]
	return mask, ok
}

// Freeze prevents further grants.
func (g *Grants) Freeze() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.frozen = true
}

// Count returns the number of granted roles.
func (g *Grants) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.roles)
}
