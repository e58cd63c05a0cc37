package pulse

import (
	"context"
	"log/slog"

	"github.com/coder/quartz"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"code-stats-daemon/internal/activity"
	"code-stats-daemon/internal/config"
	"code-stats-daemon/internal/pulse/client"
	"code-stats-daemon/internal/telemetry"
)

// ConfigSource is the subset of *config.Source the service depends on.
type ConfigSource interface {
	Current() config.Settings
	Initialized() bool
	Subscribe(fn func(config.Event)) (unsubscribe func())
}

// Options wires a Service. Config is required; everything else has a default.
type Options struct {
	Config     ConfigSource
	Poster     Poster
	Clock      quartz.Clock
	Classifier activity.Classifier
	Status     telemetry.StatusEmitter
	Logger     *slog.Logger
	Tracer     trace.Tracer
	Meter      metric.Meter
}

// Service owns the queue, delivery timer, sender and tracker for one daemon.
type Service struct {
	Queue   *Queue
	Sender  *Sender
	Timer   *Timer
	Tracker *Tracker

	logger      *slog.Logger
	unsubscribe func()
}

// NewService builds a Service from the current configuration. Scheduled deliveries run with ctx.
func NewService(ctx context.Context, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	settings := opts.Config.Current()

	poster := opts.Poster
	if poster == nil {
		poster = client.New(client.WithTimeout(settings.HTTPTimeout))
	}
	delay := settings.PulseTimeout
	if delay <= 0 {
		delay = config.DefaultPulseTimeout
	}

	queue := NewQueue(WithMaxBacklog(settings.MaxBacklog), WithQueueLogger(logger))
	sender := NewSender(queue, opts.Config, poster,
		WithStatusEmitter(opts.Status),
		WithLogger(logger),
		WithTracer(opts.Tracer),
		WithMeter(opts.Meter),
	)
	timer := NewTimer(ctx, opts.Clock, delay, func(ctx context.Context) {
		_, _ = sender.SendPulses(ctx)
	})
	tracker := NewTracker(queue, timer, opts.Classifier, opts.Config.Initialized, logger)
	tracker.metrics = newMetrics(opts.Meter, logger)

	s := &Service{
		Queue:   queue,
		Sender:  sender,
		Timer:   timer,
		Tracker: tracker,
		logger:  logger,
	}
	s.unsubscribe = opts.Config.Subscribe(s.onConfigChange)
	return s
}

func (s *Service) onConfigChange(ev config.Event) {
	if ev.Kind == config.TimeoutChanged {
		s.Timer.SetDelay(ev.New.PulseTimeout)
		s.logger.Debug("pulse: delivery delay updated", "pulse_timeout", ev.New.PulseTimeout)
	}
}

// HandleEvent records one editor event. See Tracker.HandleEvent.
func (s *Service) HandleEvent(ctx context.Context, ev activity.Event) bool {
	return s.Tracker.HandleEvent(ctx, ev)
}

// Shutdown stops the timer and makes one last delivery attempt with ctx.
func (s *Service) Shutdown(ctx context.Context) {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.Timer.Stop()
	state := s.Queue.Snapshot()
	if state.Current == nil && len(state.Backlog) == 0 {
		return
	}
	s.logger.Info("pulse: flushing before exit", "backlog", len(state.Backlog), "languages", state.Languages)
	s.Timer.Flush(ctx)
}
