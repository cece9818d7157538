package stores

import (
	"context"
	"crypto/sha256"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newChallengeTest(t *testing.T) (*ChallengeStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewChallengeStore(client, "chal"), mr
}

func challengeFixture(accountID string, ttl time.Duration) (*ChallengeRecord, [32]byte) {
	secret := sha256.Sum256([]byte("bearer-secret-" + accountID))
	hash := sha256.Sum256(secret[:])
	return &ChallengeRecord{
		AccountID:  accountID,
		SecretHash: hash,
		ExpiresAt:  time.Now().Add(ttl).Unix(),
	}, hash
}

func TestChallengeConsumeSuccessIsSingleUse(t *testing.T) {
	store, _ := newChallengeTest(t)
	ctx := context.Background()

	rec, hash := challengeFixture("acct-1", time.Hour)
	if err := store.Save(ctx, "ch-1", rec, time.Hour); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Consume(ctx, "ch-1", hash, 5)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if got.AccountID != "acct-1" {
		t.Errorf("AccountID = %q, want acct-1", got.AccountID)
	}

	// Consumption removed the record; replay reads as not found.
	if _, err := store.Consume(ctx, "ch-1", hash, 5); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound on replay, got %v", err)
	}
}

func TestChallengeConsumeUnknownID(t *testing.T) {
	store, _ := newChallengeTest(t)

	_, err := store.Consume(context.Background(), "missing", [32]byte{1}, 5)
	if !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound, got %v", err)
	}
}

func TestChallengeWrongSecretBurnsAttempt(t *testing.T) {
	store, _ := newChallengeTest(t)
	ctx := context.Background()

	rec, hash := challengeFixture("acct-1", time.Hour)
	if err := store.Save(ctx, "ch-1", rec, time.Hour); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var wrong [32]byte
	wrong[0] = ^hash[0]
	if _, err := store.Consume(ctx, "ch-1", wrong, 3); !errors.Is(err, ErrChallengeSecretMismatch) {
		t.Fatalf("expected ErrChallengeSecretMismatch, got %v", err)
	}

	// The real secret still works while attempts remain.
	if _, err := store.Consume(ctx, "ch-1", hash, 3); err != nil {
		t.Fatalf("Consume after one miss: %v", err)
	}
}

func TestChallengeAttemptsExceededBurnsRecord(t *testing.T) {
	store, _ := newChallengeTest(t)
	ctx := context.Background()

	rec, hash := challengeFixture("acct-1", time.Hour)
	if err := store.Save(ctx, "ch-1", rec, time.Hour); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var wrong [32]byte
	wrong[0] = ^hash[0]

	if _, err := store.Consume(ctx, "ch-1", wrong, 2); !errors.Is(err, ErrChallengeSecretMismatch) {
		t.Fatalf("first miss: %v", err)
	}
	if _, err := store.Consume(ctx, "ch-1", wrong, 2); !errors.Is(err, ErrChallengeAttemptsExceeded) {
		t.Fatalf("expected ErrChallengeAttemptsExceeded, got %v", err)
	}

	// The record burned; even the real secret is too late.
	if _, err := store.Consume(ctx, "ch-1", hash, 2); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound after burn, got %v", err)
	}
}

func TestChallengeLogicalExpiry(t *testing.T) {
	store, _ := newChallengeTest(t)
	ctx := context.Background()

	rec, hash := challengeFixture("acct-1", time.Hour)
	rec.ExpiresAt = time.Now().Unix() - 10
	if err := store.Save(ctx, "ch-1", rec, time.Hour); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := store.Consume(ctx, "ch-1", hash, 5); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound for expired challenge, got %v", err)
	}
}

func TestChallengePrefixIsolation(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	reset := NewChallengeStore(client, "pwdreset")
	verify := NewChallengeStore(client, "emailverify")
	ctx := context.Background()

	rec, hash := challengeFixture("acct-1", time.Hour)
	if err := reset.Save(ctx, "ch-1", rec, time.Hour); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// A reset token must not consume a verification challenge.
	if _, err := verify.Consume(ctx, "ch-1", hash, 5); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound across prefixes, got %v", err)
	}
	if _, err := reset.Consume(ctx, "ch-1", hash, 5); err != nil {
		t.Fatalf("Consume in the issuing store: %v", err)
	}
}

func TestChallengeRedisUnavailable(t *testing.T) {
	store, mr := newChallengeTest(t)
	mr.Close()

	rec, hash := challengeFixture("acct-1", time.Hour)
	if err := store.Save(context.Background(), "ch-1", rec, time.Hour); !errors.Is(err, ErrChallengeRedisUnavailable) {
		t.Fatalf("expected ErrChallengeRedisUnavailable on save, got %v", err)
	}
	if _, err := store.Consume(context.Background(), "ch-1", hash, 5); !errors.Is(err, ErrChallengeRedisUnavailable) {
		t.Fatalf("expected ErrChallengeRedisUnavailable on consume, got %v", err)
	}
}

func TestSeenStoreObserve(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewSeenStore(client, "seen")
	ctx := context.Background()

	known, err := store.Observe(ctx, "acct-1", "203.0.113.7", time.Hour)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if known {
		t.Error("first observation should be unknown")
	}

	known, err = store.Observe(ctx, "acct-1", "203.0.113.7", time.Hour)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if !known {
		t.Error("second observation should be known")
	}

	// A different account does not share the set.
	known, err = store.Observe(ctx, "acct-2", "203.0.113.7", time.Hour)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if known {
		t.Error("other account's first observation should be unknown")
	}

	// An empty address is treated as known: nothing to compare, nothing to
	// notify about.
	known, err = store.Observe(ctx, "acct-1", "", time.Hour)
	if err != nil {
		t.Fatalf("Observe empty: %v", err)
	}
	if !known {
		t.Error("empty address should read as known")
	}
}

func TestSeenStoreTTLAndForget(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewSeenStore(client, "seen")
	ctx := context.Background()

	if _, err := store.Observe(ctx, "acct-1", "203.0.113.7", time.Minute); err != nil {
		t.Fatalf("Observe: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	known, err := store.Observe(ctx, "acct-1", "203.0.113.7", time.Minute)
	if err != nil {
		t.Fatalf("Observe after TTL: %v", err)
	}
	if known {
		t.Error("address should be forgotten after TTL")
	}

	if err := store.Forget(ctx, "acct-1"); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	known, err = store.Observe(ctx, "acct-1", "203.0.113.7", time.Minute)
	if err != nil {
		t.Fatalf("Observe after Forget: %v", err)
	}
	if known {
		t.Error("address should be unknown after Forget")
	}
}
