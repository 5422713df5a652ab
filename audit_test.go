package fleetAuth

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

func (s *countingSink) Count() int64 {
	return s.count.Load()
}

type captureSink struct {
	events chan AuditEvent
}

func newCaptureSink(buffer int) *captureSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &captureSink{
		events: make(chan AuditEvent, buffer),
	}
}

func (s *captureSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func buildAuditTestEngine(t *testing.T, cfg Config, sink AuditSink, principals ...*Principal) (*Engine, *captureNotifier) {
	t.Helper()

	_, rdb := newTestRedis(t)
	notifier := &captureNotifier{}
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithPrincipalRepository(newMemRepo(principals...)).
		WithNotifier(notifier).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, notifier
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = false

	sink := &countingSink{}
	engine, _ := buildAuditTestEngine(t, cfg, sink)

	_, _ = engine.RequestChallenge(WithClientIP(context.Background(), "203.0.113.1"), "a@x.com", RoleCustomer)
	_, _ = engine.CompleteChallenge(context.Background(), "a@x.com", "000000", RoleCustomer)
	engine.Close()

	if sink.Count() != 0 {
		t.Fatalf("expected no audit sink calls when disabled, got %d", sink.Count())
	}
}

func TestAuditEnabledSinkReceivesEventWithFields(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 16

	sink := newCaptureSink(8)
	engine, _ := buildAuditTestEngine(t, cfg, sink)

	ctx := WithUserAgent(WithClientIP(context.Background(), "198.51.100.33"), "fleet-app/4.2")
	if _, err := engine.RequestChallenge(ctx, "a@x.com", RoleCustomer); err != nil {
		t.Fatalf("RequestChallenge failed: %v", err)
	}

	select {
	case ev := <-sink.events:
		if ev.EventType != auditEventChallengeRequested {
			t.Fatalf("expected %s, got %q", auditEventChallengeRequested, ev.EventType)
		}
		if ev.Identifier != "a@x.com" || !ev.Success {
			t.Fatalf("unexpected event %+v", ev)
		}
		if ev.Metadata["ip"] != "198.51.100.33" || ev.Metadata["user_agent"] != "fleet-app/4.2" {
			t.Fatalf("expected request metadata, got %v", ev.Metadata)
		}
		if ev.Metadata["channel"] != "email" {
			t.Fatalf("expected channel metadata, got %v", ev.Metadata)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected audit event to be received")
	}
}

func TestAuditFailureCarriesErrorCode(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 16

	sink := newCaptureSink(8)
	engine, _ := buildAuditTestEngine(t, cfg, sink)

	_, _ = engine.CompleteChallenge(context.Background(), "nobody@x.com", "123456", RoleCustomer)

	select {
	case ev := <-sink.events:
		if ev.EventType != auditEventLoginFailure || ev.Success {
			t.Fatalf("unexpected event %+v", ev)
		}
		if ev.Error != string(auditErrChallengeNotFound) {
			t.Fatalf("expected %s, got %q", auditErrChallengeNotFound, ev.Error)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected audit event to be received")
	}
}

func TestAuditNoSecretsInEvents(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 32
	cfg.Audit.DropIfFull = false

	var buf syncBuffer
	engine, notifier := buildAuditTestEngine(t, cfg, NewJSONWriterSink(&buf), approvedDriver())
	ctx := context.Background()

	if _, err := engine.RequestChallenge(ctx, "driver@fleet.test", RoleDriver); err != nil {
		t.Fatalf("RequestChallenge failed: %v", err)
	}
	code := notifier.last(t).Code
	res, err := engine.CompleteChallenge(ctx, "driver@fleet.test", code, RoleDriver)
	if err != nil {
		t.Fatalf("CompleteChallenge failed: %v", err)
	}
	if _, err := engine.Refresh(ctx, res.Tokens.RefreshToken); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if _, err := engine.Logout(ctx, "drv-1", res.Tokens.AccessToken); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	engine.Close()

	out := buf.String()
	for _, want := range []string{auditEventLoginSuccess, auditEventRefreshSuccess, auditEventTokenRevoked, auditEventLogout} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in audit output", want)
		}
	}
	for _, needle := range []string{res.Tokens.AccessToken, res.Tokens.RefreshToken, `"` + code + `"`} {
		if strings.Contains(out, needle) {
			t.Fatalf("sensitive value leaked in audit output: %q", needle)
		}
	}
}

func TestAuditDroppedReported(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 1
	cfg.Audit.DropIfFull = true

	gate := make(chan struct{})
	sink := gateSink(gate)
	engine, _ := buildAuditTestEngine(t, cfg, sink)
	defer close(gate)

	for i := 0; i < 5; i++ {
		_, _ = engine.CompleteChallenge(context.Background(), "nobody@x.com", "123456", RoleCustomer)
	}
	if engine.AuditDropped() == 0 {
		t.Fatalf("expected dropped audit events with a blocked sink")
	}
}

type gateSink chan struct{}

func (g gateSink) Emit(context.Context, AuditEvent) {
	<-g
}

type syncBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
