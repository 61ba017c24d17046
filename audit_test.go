package authcore

import (
	"bytes"
	"context"
	"errors"
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

func auditConfig() Config {
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 64
	cfg.Audit.DropIfFull = false
	return cfg
}

// collect reads events from sink until want events arrived or the wait
// elapsed.
func collect(t *testing.T, sink *ChannelSink, want int) []AuditEvent {
	t.Helper()
	events := make([]AuditEvent, 0, want)
	timeout := time.After(2 * time.Second)
	for len(events) < want {
		select {
		case ev := <-sink.Events():
			events = append(events, ev)
		case <-timeout:
			return events
		}
	}
	return events
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	sink := &countingSink{}
	env := newTestEnv(t, testConfig(), withAuditSink(sink))

	env.signup(t, "a@x.com", "Ann", "pw123")
	_, _ = env.engine.Login(context.Background(), "a@x.com", "wrong")
	env.engine.Close()

	if sink.Count() != 0 {
		t.Fatalf("expected no audit sink calls when disabled, got %d", sink.Count())
	}
}

func TestAuditEventCarriesRequestFields(t *testing.T) {
	sink := NewChannelSink(16)
	env := newTestEnv(t, auditConfig(), withAuditSink(sink))
	env.signup(t, "a@x.com", "Ann", "pw123")
	collect(t, sink, 1)

	ctx := WithUserAgent(WithClientIP(context.Background(), "198.51.100.33"), "curl/8")
	_, _ = env.engine.Login(ctx, "a@x.com", "wrong")

	events := collect(t, sink, 1)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.EventType != auditEventLoginFailure || ev.Success {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.IP != "198.51.100.33" || ev.UserAgent != "curl/8" {
		t.Fatalf("expected request fields, got ip=%q ua=%q", ev.IP, ev.UserAgent)
	}
	if ev.Error != string(auditErrInvalidCredentials) || ev.Metadata["reason"] != "password_mismatch" {
		t.Fatalf("unexpected error fields %q %v", ev.Error, ev.Metadata)
	}
	if ev.Timestamp.IsZero() {
		t.Fatal("expected timestamp")
	}
}

func TestAuditNoSecretsInEvents(t *testing.T) {
	sink := NewChannelSink(64)
	env := newTestEnv(t, auditConfig(), withAuditSink(sink))
	ctx := context.Background()

	const pw = "correct-password-123"
	signup, code := env.signup(t, "a@x.com", "Ann", pw)
	_ = env.engine.VerifyOTP(ctx, "a@x.com", wrongCode(code))
	if err := env.engine.VerifyOTP(ctx, "a@x.com", code); err != nil {
		t.Fatalf("VerifyOTP failed: %v", err)
	}
	login, err := env.engine.Login(ctx, "a@x.com", pw)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := env.engine.RefreshToken(ctx, login.Tokens.RefreshToken); err != nil {
		t.Fatalf("RefreshToken failed: %v", err)
	}
	if _, err := env.engine.RequestPasswordReset(ctx, "a@x.com"); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	resetCode := env.notifier.last(t, "reset", "a@x.com")

	needles := []string{
		pw,
		code,
		resetCode,
		signup.Tokens.AccessToken,
		signup.Tokens.RefreshToken,
		login.Tokens.RefreshToken,
		env.store.get(t, "a@x.com").PasswordHash,
	}

	events := collect(t, sink, 6)
	if len(events) < 6 {
		t.Fatalf("expected 6 audit events, got %d", len(events))
	}
	for _, ev := range events {
		for _, needle := range needles {
			if strings.Contains(ev.Error, needle) {
				t.Fatalf("sensitive value leaked in audit error field of %s", ev.EventType)
			}
			for k, v := range ev.Metadata {
				if strings.Contains(k, needle) || strings.Contains(v, needle) {
					t.Fatalf("sensitive value leaked in audit metadata of %s", ev.EventType)
				}
			}
		}
	}
}

func TestAuditNotificationFailureEvent(t *testing.T) {
	sink := NewChannelSink(16)
	env := newTestEnv(t, auditConfig(), withAuditSink(sink))
	env.notifier.err = errBackend

	if _, err := env.engine.Signup(context.Background(), "a@x.com", "Ann", "pw123"); err != nil {
		t.Fatalf("Signup failed: %v", err)
	}

	var seen bool
	for _, ev := range collect(t, sink, 2) {
		if ev.EventType == auditEventNotificationFailure {
			seen = true
			if ev.Error != string(auditErrNotification) || ev.Metadata["kind"] != "otp" {
				t.Fatalf("unexpected notification event %+v", ev)
			}
		}
	}
	if !seen {
		t.Fatal("expected notification failure event")
	}
}

func TestAuditErrorCodeTimeoutFirst(t *testing.T) {
	tests := []struct {
		err  error
		want AuditErrorCode
	}{
		{err: errors.Join(ErrNotificationFailed, ErrDependencyTimeout), want: auditErrTimeout},
		{err: errors.Join(ErrRateLimited, errors.New("redis down")), want: auditErrRateLimited},
		{err: errors.Join(ErrStoreUnavailable, errBackend), want: auditErrUnavailable},
		{err: context.Canceled, want: auditErrCanceled},
		{err: errBackend, want: auditErrInternal},
		{err: nil, want: ""},
	}
	for _, tt := range tests {
		if got := auditErrorCode(tt.err); got != tt.want {
			t.Fatalf("auditErrorCode(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestAuditJSONWriterSinkWritesJSONLines(t *testing.T) {
	var buf syncBuffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: auditEventLoginSuccess,
		AccountID: "acc-1",
		IP:        "127.0.0.1",
		Success:   true,
	})

	if !buf.Contains("login_success") {
		t.Fatal("expected JSON log line to contain event type")
	}
	if !buf.Contains(`"account_id":"acc-1"`) {
		t.Fatal("expected JSON log line to contain account id")
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Contains(v string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Contains(b.buf.String(), v)
}
