package permission

import (
	"errors"
	"sync"
)

// Registry maps action names to bit positions within a [Mask64].
//
// Register every action during startup, then Freeze; a frozen registry is
// safe for unsynchronized concurrent reads.
type Registry struct {
	adminReserved bool
	adminBit      int

	mu        sync.RWMutex
	nameToBit map[string]int
	bitToName map[int]string
	frozen    bool
}

// NewRegistry creates an action [Registry]. adminReserved reserves the
// highest bit for a role that passes every check without enumerating
// actions.
func NewRegistry(adminReserved bool) *Registry {
	r := &Registry{
		adminReserved: adminReserved,
		nameToBit:     make(map[string]int),
		bitToName:     make(map[int]string),
	}

	if adminReserved {
		r.adminBit = 63
	}

	return r
}

// Register assigns the next available bit to the named action.
// Returns the assigned bit index. Must be called before [Registry.Freeze].
func (r *Registry) Register(name string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return -1, errors.New("registry frozen")
	}

	if name == "" {
		return -1, errors.New("action name cannot be empty")
	}

	if _, exists := r.nameToBit[name]; exists {
		return -1, errors.New("action already registered")
	}

	nextBit := len(r.nameToBit)

	if r.adminReserved && nextBit >= r.adminBit {
		return -1, errors.New("action limit exceeded (admin bit reserved)")
	}

	if !r.adminReserved && nextBit >= 64 {
		return -1, errors.New("action limit exceeded")
	}

	r.nameToBit[name] = nextBit
	r.bitToName[nextBit] = name

	return nextBit, nil
}

// Bit returns the bit index for the named action, or false if not registered.
func (r *Registry) Bit(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bit, ok := r.nameToBit[name]
	return bit, ok
}

// Name returns the action name for the given bit index, or false if unassigned.
func (r *Registry) Name(bit int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.bitToName[bit]
	return name, ok
}

// Freeze prevents further registrations. Must be called before the
// registry is used for checks.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Count returns the number of registered actions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nameToBit)
}

// AdminBit returns the reserved admin bit, or false if admin-bit reservation
// is disabled.
func (r *Registry) AdminBit() (int, bool) {
	if !r.adminReserved {
		return -1, false
	}
	return r.adminBit, true
}
