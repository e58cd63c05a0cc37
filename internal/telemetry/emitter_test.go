package telemetry

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"code-stats-daemon/internal/telemetry/domain"
)

// mockStatusEmitter implements StatusEmitter for tests.
type mockStatusEmitter struct {
	mu       sync.Mutex
	statuses []*domain.Status
	emitErr  error
}

func (m *mockStatusEmitter) Emit(ctx context.Context, status *domain.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, status)
	return m.emitErr
}

func (m *mockStatusEmitter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.statuses)
}

func TestEmit_NilEmitter(t *testing.T) {
	// Should not panic
	Emit(context.Background(), nil, &domain.Status{Kind: domain.StatusSubmitting})
}

func TestEmit_NilStatus(t *testing.T) {
	m := &mockStatusEmitter{}
	Emit(context.Background(), m, nil)
	if m.count() != 0 {
		t.Errorf("expected 0 statuses, got %d", m.count())
	}
}

func TestEmit_ErrorIsSwallowed(t *testing.T) {
	m := &mockStatusEmitter{emitErr: errors.New("status bar gone")}
	Emit(context.Background(), m, &domain.Status{Kind: domain.StatusError, Message: "x"})
	if m.count() != 1 {
		t.Errorf("expected 1 status, got %d", m.count())
	}
}

func TestLogEmitter_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	em := NewLogEmitter(logger)

	_ = em.Emit(context.Background(), &domain.Status{Kind: domain.StatusSubmitting, Message: "C::S submitting…"})
	_ = em.Emit(context.Background(), &domain.Status{Kind: domain.StatusRejected, Message: "C::S submit failed: 500 boom", StatusCode: 500, CycleID: "c1"})
	_ = em.Emit(context.Background(), &domain.Status{Kind: domain.StatusCleared})

	out := buf.String()
	if !strings.Contains(out, "level=INFO") || !strings.Contains(out, "kind=submitting") {
		t.Errorf("missing submitting line: %s", out)
	}
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "status_code=500") || !strings.Contains(out, "cycle_id=c1") {
		t.Errorf("missing rejected line: %s", out)
	}
	if !strings.Contains(out, "status cleared") {
		t.Errorf("missing cleared line: %s", out)
	}
}

func TestMulti_CallsAllAndJoinsErrors(t *testing.T) {
	failing := &mockStatusEmitter{emitErr: errors.New("fail")}
	ok := &mockStatusEmitter{}
	em := Multi(failing, nil, ok)
	err := em.Emit(context.Background(), &domain.Status{Kind: domain.StatusSubmitting})
	if err == nil {
		t.Error("expected joined error")
	}
	if failing.count() != 1 || ok.count() != 1 {
		t.Errorf("counts = %d, %d; want 1, 1", failing.count(), ok.count())
	}
}

func TestRecorder_Current(t *testing.T) {
	r := &Recorder{}
	if got := r.Current(); got != "" {
		t.Errorf("Current on empty = %q", got)
	}
	_ = r.Emit(context.Background(), &domain.Status{Kind: domain.StatusError, Message: "C::S error: dial"})
	if got := r.Current(); got != "C::S error: dial" {
		t.Errorf("Current = %q", got)
	}
	_ = r.Emit(context.Background(), &domain.Status{Kind: domain.StatusCleared})
	if got := r.Current(); got != "" {
		t.Errorf("Current after clear = %q, want empty", got)
	}
	if n := len(r.Statuses()); n != 2 {
		t.Errorf("Statuses len = %d, want 2", n)
	}
}
