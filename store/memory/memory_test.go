package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wardauth/ward"
)

func seedStoreAccount(t *testing.T, store *Store, id, email string) *ward.Account {
	t.Helper()

	acct := &ward.Account{
		ID:        id,
		Email:     email,
		Role:      ward.RoleUser,
		CreatedAt: time.Now().UTC(),
	}
	if err := store.Create(context.Background(), acct); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return acct
}

func TestCreateRejectsDuplicateEmail(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	acct := seedStoreAccount(t, store, "a1", "Alice@Example.com")
	if acct.Version != 1 {
		t.Fatalf("expected version 1 after create, got %d", acct.Version)
	}

	// Uniqueness runs on the normalized address.
	err := store.Create(ctx, &ward.Account{ID: "a2", Email: "alice@example.com"})
	if !errors.Is(err, ward.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestFindByEmailNormalizes(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	acct := seedStoreAccount(t, store, "a1", "Alice@Example.com")

	found, err := store.FindByEmail(ctx, "  ALICE@example.COM ")
	if err != nil {
		t.Fatalf("FindByEmail failed: %v", err)
	}
	if found == nil || found.ID != acct.ID {
		t.Fatalf("lookup missed the account: %+v", found)
	}

	absent, err := store.FindByEmail(ctx, "nobody@example.com")
	if err != nil || absent != nil {
		t.Fatalf("absent email should answer nil, nil; got %+v, %v", absent, err)
	}
}

func TestFindHandsOutClones(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	acct := seedStoreAccount(t, store, "a1", "alice@example.com")

	first, err := store.FindByID(ctx, acct.ID)
	if err != nil || first == nil {
		t.Fatalf("FindByID failed: %+v, %v", first, err)
	}

	// Mutating a returned struct must not leak into the store.
	first.FailedAttempts = 99
	first.Role = ward.RoleAdmin

	second, err := store.FindByID(ctx, acct.ID)
	if err != nil || second == nil {
		t.Fatalf("reload failed: %+v, %v", second, err)
	}
	if second.FailedAttempts != 0 || second.Role != ward.RoleUser {
		t.Fatalf("stored account mutated through a clone: %+v", second)
	}
}

func TestCompareAndUpdateVersionGate(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	acct := seedStoreAccount(t, store, "a1", "alice@example.com")

	applied, err := store.CompareAndUpdate(ctx, acct.ID, acct.Version, func(a *ward.Account) {
		a.FailedAttempts = 3
	})
	if err != nil || !applied {
		t.Fatalf("expected update to apply: applied=%v err=%v", applied, err)
	}

	// The original version is stale now.
	applied, err = store.CompareAndUpdate(ctx, acct.ID, acct.Version, func(a *ward.Account) {
		a.FailedAttempts = 0
	})
	if err != nil || applied {
		t.Fatalf("stale version should not apply: applied=%v err=%v", applied, err)
	}

	reloaded, err := store.FindByID(ctx, acct.ID)
	if err != nil || reloaded == nil {
		t.Fatalf("reload failed: %+v, %v", reloaded, err)
	}
	if reloaded.FailedAttempts != 3 || reloaded.Version != acct.Version+1 {
		t.Fatalf("unexpected state: attempts=%d version=%d", reloaded.FailedAttempts, reloaded.Version)
	}

	// A missing account reports a conflict, not an error.
	applied, err = store.CompareAndUpdate(ctx, "no-such-id", 1, func(a *ward.Account) {})
	if err != nil || applied {
		t.Fatalf("missing account should answer false, nil; got applied=%v err=%v", applied, err)
	}
}

func TestCompareAndUpdateRenamesEmailIndex(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	acct := seedStoreAccount(t, store, "a1", "alice@example.com")

	applied, err := store.CompareAndUpdate(ctx, acct.ID, acct.Version, func(a *ward.Account) {
		a.Email = "Alice.New@Example.com"
	})
	if err != nil || !applied {
		t.Fatalf("rename failed: applied=%v err=%v", applied, err)
	}

	byNew, err := store.FindByEmail(ctx, "alice.new@example.com")
	if err != nil || byNew == nil || byNew.ID != acct.ID {
		t.Fatalf("new address not indexed: %+v, %v", byNew, err)
	}
	byOld, err := store.FindByEmail(ctx, "alice@example.com")
	if err != nil || byOld != nil {
		t.Fatalf("old address should be gone: %+v, %v", byOld, err)
	}
}

func TestLinkIdentityUniqueIndex(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	now := time.Now().UTC()

	link := func(account, provider, subject string) error {
		return store.LinkIdentity(ctx, ward.LinkedIdentity{
			Provider:  provider,
			SubjectID: subject,
			AccountID: account,
			LinkedAt:  now,
		})
	}

	if err := link("a1", "github", "s1"); err != nil {
		t.Fatalf("LinkIdentity failed: %v", err)
	}
	if err := link("a2", "github", "s1"); !errors.Is(err, ward.ErrIdentityLinkedElsewhere) {
		t.Fatalf("expected ErrIdentityLinkedElsewhere, got %v", err)
	}
	if err := link("a1", "github", "s2"); !errors.Is(err, ward.ErrProviderAlreadyLinked) {
		t.Fatalf("expected ErrProviderAlreadyLinked, got %v", err)
	}
	if err := link("a1", "gitlab", "s1"); err != nil {
		t.Fatalf("distinct provider should link: %v", err)
	}

	identity, err := store.FindIdentity(ctx, "github", "s1")
	if err != nil || identity == nil || identity.AccountID != "a1" {
		t.Fatalf("FindIdentity missed the link: %+v, %v", identity, err)
	}
	absent, err := store.FindIdentity(ctx, "github", "never-linked")
	if err != nil || absent != nil {
		t.Fatalf("absent identity should answer nil, nil; got %+v, %v", absent, err)
	}
}

func TestIdentitiesForAccountOrderedByLinkTime(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	base := time.Now().UTC()

	links := []ward.LinkedIdentity{
		{Provider: "gitlab", SubjectID: "s2", AccountID: "a1", LinkedAt: base.Add(2 * time.Minute)},
		{Provider: "github", SubjectID: "s1", AccountID: "a1", LinkedAt: base},
		{Provider: "google", SubjectID: "s3", AccountID: "a1", LinkedAt: base.Add(time.Minute)},
		{Provider: "github", SubjectID: "other", AccountID: "a2", LinkedAt: base},
	}
	for _, identity := range links {
		if err := store.LinkIdentity(ctx, identity); err != nil {
			t.Fatalf("LinkIdentity(%s) failed: %v", identity.Provider, err)
		}
	}

	out, err := store.IdentitiesForAccount(ctx, "a1")
	if err != nil {
		t.Fatalf("IdentitiesForAccount failed: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 identities, got %d", len(out))
	}
	for i, want := range []string{"github", "google", "gitlab"} {
		if out[i].Provider != want {
			t.Fatalf("position %d: got %q, want %q", i, out[i].Provider, want)
		}
	}

	removed, err := store.UnlinkIdentity(ctx, "a1", "google")
	if err != nil || !removed {
		t.Fatalf("unlink should remove: removed=%v err=%v", removed, err)
	}
	removed, err = store.UnlinkIdentity(ctx, "a1", "google")
	if err != nil || removed {
		t.Fatalf("second unlink should find nothing: removed=%v err=%v", removed, err)
	}
}
