package ward_test

import (
	. "github.com/wardauth/ward"

	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/wardauth/ward/store/memory"
)

func newBenchmarkEngine(tb testing.TB) (*Engine, func()) {
	tb.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		tb.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	engine, err := New().
		WithConfig(lightTestConfig()).
		WithRedis(rdb).
		WithAccountStore(memory.NewStore()).
		Build()
	if err != nil {
		tb.Fatalf("Build failed: %v", err)
	}

	if _, err := engine.Register(context.Background(), "alice@example.com", "correct-password-123", ""); err != nil {
		tb.Fatalf("Register failed: %v", err)
	}

	cleanup := func() {
		_ = engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
	return engine, cleanup
}

func BenchmarkVerifyAccess(b *testing.B) {
	engine, cleanup := newBenchmarkEngine(b)
	defer cleanup()

	res, err := engine.Authenticate(context.Background(), "alice@example.com", "correct-password-123", "")
	if err != nil {
		b.Fatalf("login failed: %v", err)
	}
	access := res.Tokens.AccessToken

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.VerifyAccess(access); err != nil {
			b.Fatalf("verify failed: %v", err)
		}
	}
}

func BenchmarkRotate(b *testing.B) {
	engine, cleanup := newBenchmarkEngine(b)
	defer cleanup()

	res, err := engine.Authenticate(context.Background(), "alice@example.com", "correct-password-123", "")
	if err != nil {
		b.Fatalf("login failed: %v", err)
	}
	token := res.Tokens.RefreshToken

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pair, err := engine.Rotate(context.Background(), token)
		if err != nil {
			b.Fatalf("rotate failed: %v", err)
		}
		token = pair.RefreshToken
	}
}

func BenchmarkAuthenticate(b *testing.B) {
	engine, cleanup := newBenchmarkEngine(b)
	defer cleanup()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Authenticate(context.Background(), "alice@example.com", "correct-password-123", ""); err != nil {
			b.Fatalf("login failed: %v", err)
		}
	}
}
