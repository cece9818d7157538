//go:build integration
// +build integration

package test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/wardauth/ward"
	"github.com/wardauth/ward/refresh"
	"github.com/wardauth/ward/store/memory"
)

func newIntegrationStore(t *testing.T) (*refresh.Store, *redis.Client, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := refresh.NewStore(rdb, "rt", time.Hour)

	return store, rdb, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

// integrationConfig trims argon2id to test cost and opens the flow throttles
// so multi-step suites never trip them.
func integrationConfig() ward.Config {
	cfg := ward.DefaultConfig()

	cfg.Argon2.Memory = 8 * 1024
	cfg.Argon2.Time = 1
	cfg.Argon2.Parallelism = 1

	cfg.Registration.MaxAttempts = 1000
	cfg.Reset.Throttle.MaxAttempts = 1000
	cfg.Verification.Throttle.MaxAttempts = 1000

	return cfg
}

func newIntegrationEngine(t *testing.T) (*ward.Engine, *redis.Client, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	engine, err := ward.New().
		WithConfig(integrationConfig()).
		WithRedis(rdb).
		WithAccountStore(memory.NewStore()).
		Build()
	if err != nil {
		t.Fatalf("engine build failed: %v", err)
	}

	return engine, rdb, func() {
		_ = engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
}

// makeRecord returns a chain-root token record carrying the hash of secret.
func makeRecord(accountID string, secret [32]byte) *refresh.TokenRecord {
	id := uuid.New()
	now := time.Now()

	return &refresh.TokenRecord{
		ID:         id,
		AccountID:  accountID,
		ChainID:    id,
		IssuedAt:   now.Unix(),
		ExpiresAt:  now.Add(time.Hour).Unix(),
		SecretHash: refresh.HashSecret(secret),
	}
}

func secretOf(b byte) [32]byte {
	var out [32]byte
	for i := 0; i < len(out); i++ {
		out[i] = b
	}
	return out
}
