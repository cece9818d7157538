package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/wardauth/ward"
)

type identityKey struct {
	provider string
	subject  string
}

// Store defines a public type used by ward APIs.
//
// Store instances are intended to be configured during initialization and then
// treated as immutable unless documented otherwise. The zero value is not
// usable; construct through [NewStore].
type Store struct {
	mu         sync.RWMutex
	accounts   map[string]*ward.Account
	byEmail    map[string]string
	identities map[identityKey]ward.LinkedIdentity
}

// NewStore describes the newstore operation and its observable behavior.
//
// NewStore may return an error when input validation, dependency calls, or security checks fail.
// NewStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewStore() *Store {
	return &Store{
		accounts:   make(map[string]*ward.Account),
		byEmail:    make(map[string]string),
		identities: make(map[identityKey]ward.LinkedIdentity),
	}
}

// FindByEmail implements [ward.AccountStore].
func (s *Store) FindByEmail(_ context.Context, email string) (*ward.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[ward.NormalizeEmail(email)]
	if !ok {
		return nil, nil
	}
	return s.accounts[id].Clone(), nil
}

// FindByID implements [ward.AccountStore].
func (s *Store) FindByID(_ context.Context, id string) (*ward.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[id]
	if !ok {
		return nil, nil
	}
	return acct.Clone(), nil
}

// Create implements [ward.AccountStore]. The stored account starts at
// version 1; the caller's struct is updated to match.
func (s *Store) Create(_ context.Context, account *ward.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := ward.NormalizeEmail(account.Email)
	if _, taken := s.byEmail[email]; taken {
		return ward.ErrEmailTaken
	}

	account.Version = 1
	stored := account.Clone()
	stored.Email = email

	s.accounts[stored.ID] = stored
	s.byEmail[email] = stored.ID
	return nil
}

// CompareAndUpdate implements [ward.AccountStore]. A missing account reports
// a version conflict, not an error: the caller's reload will see the absence.
func (s *Store) CompareAndUpdate(_ context.Context, id string, expectedVersion int64, mutate func(*ward.Account)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.accounts[id]
	if !ok || current.Version != expectedVersion {
		return false, nil
	}

	next := current.Clone()
	mutate(next)
	next.ID = current.ID
	next.Version = current.Version + 1

	if next.Email != current.Email {
		next.Email = ward.NormalizeEmail(next.Email)
		delete(s.byEmail, current.Email)
		s.byEmail[next.Email] = id
	}

	s.accounts[id] = next
	return true, nil
}

// FindIdentity implements [ward.AccountStore].
func (s *Store) FindIdentity(_ context.Context, provider, subjectID string) (*ward.LinkedIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.identities[identityKey{provider: provider, subject: subjectID}]
	if !ok {
		return nil, nil
	}
	return &identity, nil
}

// IdentitiesForAccount implements [ward.AccountStore]. Results are ordered by
// link time, then provider name, so listings are stable.
func (s *Store) IdentitiesForAccount(_ context.Context, accountID string) ([]ward.LinkedIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ward.LinkedIdentity
	for _, identity := range s.identities {
		if identity.AccountID == accountID {
			out = append(out, identity)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LinkedAt.Equal(out[j].LinkedAt) {
			return out[i].LinkedAt.Before(out[j].LinkedAt)
		}
		return out[i].Provider < out[j].Provider
	})

	return out, nil
}

// LinkIdentity implements [ward.AccountStore].
func (s *Store) LinkIdentity(_ context.Context, identity ward.LinkedIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := identityKey{provider: identity.Provider, subject: identity.SubjectID}
	if existing, ok := s.identities[key]; ok {
		if existing.AccountID == identity.AccountID {
			return ward.ErrProviderAlreadyLinked
		}
		return ward.ErrIdentityLinkedElsewhere
	}

	for k, existing := range s.identities {
		if k.provider == identity.Provider && existing.AccountID == identity.AccountID {
			return ward.ErrProviderAlreadyLinked
		}
	}

	s.identities[key] = identity
	return nil
}

// UnlinkIdentity implements [ward.AccountStore].
func (s *Store) UnlinkIdentity(_ context.Context, accountID, provider string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, identity := range s.identities {
		if key.provider == provider && identity.AccountID == accountID {
			delete(s.identities, key)
			return true, nil
		}
	}
	return false, nil
}
