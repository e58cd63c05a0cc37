package pulse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"code-stats-daemon/internal/config"
	"code-stats-daemon/internal/pulse/client"
	"code-stats-daemon/internal/pulse/domain"
	"code-stats-daemon/internal/telemetry"
	telemetrydomain "code-stats-daemon/internal/telemetry/domain"
)

// ErrMissingSettings is returned by SendPulses when the API URL or key is not configured.
var ErrMissingSettings = errors.New("pulse: API URL or key not configured")

// SettingsSource supplies the current configuration.
type SettingsSource interface {
	Current() config.Settings
}

// Poster delivers one serialized pulse. *client.Client implements it.
type Poster interface {
	Post(ctx context.Context, url, token string, payload domain.Payload) error
}

// Result summarizes one delivery cycle.
type Result struct {
	CycleID   string
	Attempted int
	Delivered int
	Failed    int
}

// Sender drains a Queue to the pulses API.
type Sender struct {
	queue    *Queue
	settings SettingsSource
	poster   Poster
	status   telemetry.StatusEmitter
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *metrics
	nowF     func() time.Time
	newID    func() string

	// cycleMu serializes delivery cycles; TakePending/Reset must pair up.
	cycleMu sync.Mutex
}

// SenderOption configures a Sender.
type SenderOption func(*senderOptions)

type senderOptions struct {
	status telemetry.StatusEmitter
	logger *slog.Logger
	tracer trace.Tracer
	meter  metric.Meter
	nowF   func() time.Time
	newID  func() string
}

// WithStatusEmitter sets where transient status messages go.
func WithStatusEmitter(e telemetry.StatusEmitter) SenderOption {
	return func(o *senderOptions) { o.status = e }
}

// WithLogger sets the sender's logger.
func WithLogger(l *slog.Logger) SenderOption {
	return func(o *senderOptions) { o.logger = l }
}

// WithTracer sets the tracer used for one span per delivery cycle.
func WithTracer(t trace.Tracer) SenderOption {
	return func(o *senderOptions) { o.tracer = t }
}

// WithMeter sets the meter for delivery counters.
func WithMeter(m metric.Meter) SenderOption {
	return func(o *senderOptions) { o.meter = m }
}

// WithClock sets the time source for status timestamps.
func WithClock(now func() time.Time) SenderOption {
	return func(o *senderOptions) { o.nowF = now }
}

// WithIDGenerator sets how cycle and status IDs are generated.
func WithIDGenerator(f func() string) SenderOption {
	return func(o *senderOptions) { o.newID = f }
}

// NewSender returns a Sender for queue, reading URL and key from settings on every cycle.
func NewSender(queue *Queue, settings SettingsSource, poster Poster, opts ...SenderOption) *Sender {
	o := senderOptions{
		logger: slog.Default(),
		nowF:   time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.tracer == nil {
		o.tracer = tracenoop.NewTracerProvider().Tracer(instrumentationName)
	}
	return &Sender{
		queue:    queue,
		settings: settings,
		poster:   poster,
		status:   o.status,
		logger:   o.logger,
		tracer:   o.tracer,
		metrics:  newMetrics(o.meter, o.logger),
		nowF:     o.nowF,
		newID:    o.newID,
	}
}

// SendPulses posts every pending pulse, oldest first. Failed pulses return to the
// backlog verbatim and in order; delivered ones are dropped. One failure does not stop
// the remaining posts. Without a URL and key it warns and leaves the queue untouched.
// A cycle with nothing to send clears the status surface without posting.
func (s *Sender) SendPulses(ctx context.Context) (Result, error) {
	settings := s.settings.Current()
	if !settings.HasRequiredSettings() {
		s.logger.Warn("pulse: API URL or key not set, not sending pulses", "api_url", settings.APIURL)
		s.emit(ctx, "", telemetrydomain.StatusMissingSettings, "C::S: API key or URL missing, check your settings", 0)
		return Result{}, ErrMissingSettings
	}

	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	pending := s.queue.TakePending()
	res := Result{CycleID: s.newID(), Attempted: len(pending)}
	if len(pending) == 0 {
		// Nothing failed, so an earlier warning no longer applies.
		s.emit(ctx, res.CycleID, telemetrydomain.StatusCleared, "", 0)
		return res, nil
	}

	ctx, span := s.tracer.Start(ctx, "pulse.send", trace.WithAttributes(
		attribute.String("delivery.cycle_id", res.CycleID),
		attribute.Int("pulse.pending", len(pending)),
	))
	defer span.End()

	logger := s.logger.With("cycle_id", res.CycleID)
	logger.Debug("pulse: submitting", "pending", len(pending))
	s.emit(ctx, res.CycleID, telemetrydomain.StatusSubmitting, "C::S submitting…", 0)

	var failed []domain.Payload
	for i, payload := range pending {
		err := s.poster.Post(ctx, settings.APIURL, settings.APIKey, payload)
		if err == nil {
			res.Delivered++
			continue
		}
		failed = append(failed, payload)
		span.AddEvent("pulse.failed", trace.WithAttributes(attribute.Int("pulse.index", i)))

		var rejected *client.RejectedError
		if errors.As(err, &rejected) {
			logger.Warn("pulse: failed with status", "status_code", rejected.StatusCode, "body", rejected.Body)
			s.emit(ctx, res.CycleID, telemetrydomain.StatusRejected,
				fmt.Sprintf("C::S submit failed: %d %s", rejected.StatusCode, rejected.Body), rejected.StatusCode)
			continue
		}
		logger.Warn("pulse: failed with error", "error", err)
		s.emit(ctx, res.CycleID, telemetrydomain.StatusError, "C::S error: "+err.Error(), 0)
	}
	res.Failed = len(failed)

	s.queue.Reset(failed)
	s.metrics.recordCycle(ctx, res.Delivered, res.Failed, s.queue.BacklogLen())
	span.SetAttributes(
		attribute.Int("pulse.delivered", res.Delivered),
		attribute.Int("pulse.failed", res.Failed),
	)

	if len(failed) == 0 {
		logger.Debug("pulse: all pulses delivered", "delivered", res.Delivered)
		s.emit(ctx, res.CycleID, telemetrydomain.StatusCleared, "", 0)
		return res, nil
	}
	span.SetStatus(codes.Error, fmt.Sprintf("%d of %d pulses failed", res.Failed, res.Attempted))
	logger.Info("pulse: requeued failed pulses", "failed", res.Failed, "delivered", res.Delivered)
	return res, nil
}

func (s *Sender) emit(ctx context.Context, cycleID string, kind telemetrydomain.StatusKind, msg string, code int) {
	telemetry.Emit(ctx, s.status, &telemetrydomain.Status{
		ID:         s.newID(),
		CycleID:    cycleID,
		Kind:       kind,
		Message:    msg,
		StatusCode: code,
		CreatedAt:  s.nowF(),
	})
}
