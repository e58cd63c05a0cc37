// Package telemetry is the status surface of the daemon: transient messages about pulse delivery.
package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"code-stats-daemon/internal/telemetry/domain"
)

// StatusEmitter shows status events to the user (log lines, OTel log records, an editor status bar).
// Best-effort; callers log and ignore errors.
type StatusEmitter interface {
	Emit(ctx context.Context, status *domain.Status) error
}

// Emit sends status through emitter and logs failures. emitter and status may be nil.
func Emit(ctx context.Context, emitter StatusEmitter, status *domain.Status) {
	if emitter == nil || status == nil {
		return
	}
	if err := emitter.Emit(ctx, status); err != nil {
		slog.Default().Warn("telemetry: status emit failed", "kind", string(status.Kind), "error", err)
	}
}

// NewLogEmitter returns an emitter that writes statuses to logger. Failures log at warn, the rest at info.
func NewLogEmitter(logger *slog.Logger) StatusEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &logEmitter{logger: logger}
}

type logEmitter struct {
	logger *slog.Logger
}

func (e *logEmitter) Emit(ctx context.Context, status *domain.Status) error {
	if status == nil {
		return nil
	}
	level := slog.LevelInfo
	switch status.Kind {
	case domain.StatusRejected, domain.StatusError, domain.StatusMissingSettings:
		level = slog.LevelWarn
	}
	attrs := []any{"kind", string(status.Kind)}
	if status.CycleID != "" {
		attrs = append(attrs, "cycle_id", status.CycleID)
	}
	if status.StatusCode != 0 {
		attrs = append(attrs, "status_code", status.StatusCode)
	}
	msg := status.Message
	if msg == "" {
		msg = "C::S status cleared"
	}
	e.logger.Log(ctx, level, msg, attrs...)
	return nil
}

// Multi fans a status out to every emitter. All emitters are called; errors are joined.
func Multi(emitters ...StatusEmitter) StatusEmitter {
	out := make(multiEmitter, 0, len(emitters))
	for _, e := range emitters {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

type multiEmitter []StatusEmitter

func (m multiEmitter) Emit(ctx context.Context, status *domain.Status) error {
	var errs []error
	for _, e := range m {
		if err := e.Emit(ctx, status); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps every emitted status in memory for inspection.
type Recorder struct {
	mu       sync.Mutex
	statuses []domain.Status
}

// Emit records a copy of status.
func (r *Recorder) Emit(ctx context.Context, status *domain.Status) error {
	if status == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, *status)
	return nil
}

// Statuses returns all recorded statuses in emission order.
func (r *Recorder) Statuses() []domain.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Status, len(r.statuses))
	copy(out, r.statuses)
	return out
}

// Last returns the most recent status, if any.
func (r *Recorder) Last() (domain.Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) == 0 {
		return domain.Status{}, false
	}
	return r.statuses[len(r.statuses)-1], true
}

// Current returns the message currently shown: the last message, or "" once cleared.
func (r *Recorder) Current() string {
	last, ok := r.Last()
	if !ok || last.Kind == domain.StatusCleared {
		return ""
	}
	return last.Message
}
