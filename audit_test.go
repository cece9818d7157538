package ward_test

import (
	. "github.com/wardauth/ward"

	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wardauth/ward/store/memory"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) error {
	s.count.Add(1)
	return nil
}

type captureSink struct {
	events chan AuditEvent
}

func newCaptureSink(buffer int) *captureSink {
	return &captureSink{events: make(chan AuditEvent, buffer)}
}

func (s *captureSink) Emit(ctx context.Context, ev AuditEvent) error {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
	return nil
}

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(ctx context.Context, _ AuditEvent) error {
	select {
	case <-s.gate:
	case <-ctx.Done():
	}
	return nil
}

func newAuditTestEngine(t *testing.T, sink AuditSink) *Engine {
	t.Helper()

	_, rdb := newTestRedis(t)
	engine, err := New().
		WithConfig(lightTestConfig()).
		WithRedis(rdb).
		WithAccountStore(memory.NewStore()).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

func waitForEvent(t *testing.T, sink *captureSink, eventType string) AuditEvent {
	t.Helper()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-sink.events:
			if ev.Type == eventType {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s audit event", eventType)
		}
	}
}

func TestAuditSinkReceivesLoginEvents(t *testing.T) {
	sink := newCaptureSink(16)
	engine := newAuditTestEngine(t, sink)

	acct := seedAccount(t, engine, "alice@example.com", "correct-password-123")
	ctx := WithClientIP(context.Background(), "203.0.113.9")

	if _, err := engine.Authenticate(ctx, "alice@example.com", "wrong-password-123", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	failed := waitForEvent(t, sink, AuditLoginFailed)
	if failed.Success {
		t.Fatal("login failure event marked successful")
	}
	if failed.AccountID != acct.ID {
		t.Fatalf("expected account %s on failure event, got %q", acct.ID, failed.AccountID)
	}
	if failed.IP != "203.0.113.9" {
		t.Fatalf("expected caller IP on event, got %q", failed.IP)
	}
	// Callers get the coarse sentinel; the audit stream names the reason.
	if failed.Error != "invalid_credentials" {
		t.Fatalf("expected invalid_credentials reason, got %q", failed.Error)
	}

	if _, err := engine.Authenticate(ctx, "alice@example.com", "correct-password-123", ""); err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	success := waitForEvent(t, sink, AuditLoginSuccess)
	if !success.Success || success.AccountID != acct.ID {
		t.Fatalf("unexpected success event: %+v", success)
	}
	if success.Error != "" {
		t.Fatalf("success event carries error %q", success.Error)
	}
}

func TestAuditEventsCarryNoSecrets(t *testing.T) {
	sink := newCaptureSink(32)
	engine := newAuditTestEngine(t, sink)
	ctx := context.Background()

	password := "correct-password-123"
	acct := seedAccount(t, engine, "alice@example.com", password)

	res, err := engine.Authenticate(ctx, "alice@example.com", password, "")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if _, err := engine.Rotate(ctx, res.Tokens.RefreshToken); err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}

	stored, err := StoreOf(engine).FindByID(ctx, acct.ID)
	if err != nil || stored == nil {
		t.Fatalf("reload failed: %v", err)
	}
	secrets := []string{password, res.Tokens.RefreshToken, res.Tokens.AccessToken, stored.PasswordHash}

	events := make([]AuditEvent, 0, 8)
	timeout := time.After(2 * time.Second)
collect:
	for len(events) < 8 {
		select {
		case ev := <-sink.events:
			events = append(events, ev)
		case <-timeout:
			break collect
		}
	}
	if len(events) == 0 {
		t.Fatal("expected audit events")
	}

	for _, ev := range events {
		for _, secret := range secrets {
			if secret == "" {
				continue
			}
			if strings.Contains(ev.Error, secret) {
				t.Fatalf("secret leaked in %s event error field", ev.Type)
			}
			for k, v := range ev.Metadata {
				if strings.Contains(k, secret) || strings.Contains(v, secret) {
					t.Fatalf("secret leaked in %s event metadata", ev.Type)
				}
			}
		}
	}
}

func TestAuditEmitNeverBlocksWhenQueueFull(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	dispatcher := newAuditDispatcher(sink, 1, time.Second)
	defer func() {
		close(sink.gate)
		_ = dispatcher.Close()
	}()

	dispatcher.Emit(AuditEvent{Type: "e1"})
	dispatcher.Emit(AuditEvent{Type: "e2"})

	start := time.Now()
	dispatcher.Emit(AuditEvent{Type: "e3"})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("emit blocked on a full queue")
	}
	if dispatcher.Dropped() == 0 {
		t.Fatal("expected dropped counter to increment when queue is full")
	}
}

func TestAuditCloseDrainsBufferedEvents(t *testing.T) {
	sink := &countingSink{}
	dispatcher := newAuditDispatcher(sink, 8, time.Second)

	for i := 0; i < 5; i++ {
		dispatcher.Emit(AuditEvent{Type: AuditLogout})
	}
	if err := dispatcher.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := sink.count.Load(); got != 5 {
		t.Fatalf("expected 5 delivered events after drain, got %d", got)
	}

	// Close is idempotent; emits after it are counted, never delivered.
	if err := dispatcher.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	dispatcher.Emit(AuditEvent{Type: AuditLogout})
	if sink.count.Load() != 5 {
		t.Fatal("event delivered after Close")
	}
	if dispatcher.Dropped() == 0 {
		t.Fatal("expected post-Close emit to count as dropped")
	}
}

func TestAuditPanickingSinkDoesNotKillWorker(t *testing.T) {
	sink := &panicSink{delivered: make(chan AuditEvent, 1)}
	dispatcher := newAuditDispatcher(sink, 8, time.Second)
	defer func() { _ = dispatcher.Close() }()

	dispatcher.Emit(AuditEvent{Type: "boom"})
	dispatcher.Emit(AuditEvent{Type: AuditLoginSuccess})

	select {
	case ev := <-sink.delivered:
		if ev.Type != AuditLoginSuccess {
			t.Fatalf("unexpected event after panic: %s", ev.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker stopped delivering after a sink panic")
	}
}

type panicSink struct {
	delivered chan AuditEvent
}

func (s *panicSink) Emit(_ context.Context, ev AuditEvent) error {
	if ev.Type == "boom" {
		panic("sink exploded")
	}
	s.delivered <- ev
	return nil
}

func TestZapSinkWritesStructuredEntry(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewZapSink(zap.New(core))

	err := sink.Emit(context.Background(), AuditEvent{
		Timestamp: time.Now().UTC(),
		Type:      AuditLoginFailed,
		AccountID: "acct-1",
		IP:        "127.0.0.1",
		Error:     "invalid_credentials",
	})
	if err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["event"] != AuditLoginFailed {
		t.Fatalf("expected event field %q, got %v", AuditLoginFailed, fields["event"])
	}
	if fields["account_id"] != "acct-1" {
		t.Fatalf("expected account_id field, got %v", fields["account_id"])
	}
	if fields["reason"] != "invalid_credentials" {
		t.Fatalf("expected reason field, got %v", fields["reason"])
	}
}

func TestZapSinkNilLoggerIsSafe(t *testing.T) {
	sink := NewZapSink(nil)
	if err := sink.Emit(context.Background(), AuditEvent{Type: AuditLogout}); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
}
