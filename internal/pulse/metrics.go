package pulse

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// instrumentationName scopes this package's meters and tracers.
const instrumentationName = "code-stats-daemon/internal/pulse"

type metrics struct {
	xpRecorded    metric.Int64Counter
	pulsesSent    metric.Int64Counter
	pulsesFailed  metric.Int64Counter
	cycles        metric.Int64Counter
	backlogLength metric.Int64Gauge
}

func newMetrics(meter metric.Meter, logger *slog.Logger) *metrics {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter(instrumentationName)
	}
	fallback := noop.NewMeterProvider().Meter(instrumentationName)
	m := &metrics{}
	var err error
	if m.xpRecorded, err = meter.Int64Counter("codestats.xp.recorded",
		metric.WithDescription("XP credited from editor activity"), metric.WithUnit("{xp}")); err != nil {
		logger.Warn("pulse: create metric", "name", "codestats.xp.recorded", "error", err)
		m.xpRecorded, _ = fallback.Int64Counter("codestats.xp.recorded")
	}
	if m.pulsesSent, err = meter.Int64Counter("codestats.pulses.sent",
		metric.WithDescription("Pulses accepted by the API"), metric.WithUnit("{pulse}")); err != nil {
		logger.Warn("pulse: create metric", "name", "codestats.pulses.sent", "error", err)
		m.pulsesSent, _ = fallback.Int64Counter("codestats.pulses.sent")
	}
	if m.pulsesFailed, err = meter.Int64Counter("codestats.pulses.failed",
		metric.WithDescription("Pulse delivery attempts that failed and were requeued"), metric.WithUnit("{pulse}")); err != nil {
		logger.Warn("pulse: create metric", "name", "codestats.pulses.failed", "error", err)
		m.pulsesFailed, _ = fallback.Int64Counter("codestats.pulses.failed")
	}
	if m.cycles, err = meter.Int64Counter("codestats.delivery.cycles",
		metric.WithDescription("Delivery cycles started")); err != nil {
		logger.Warn("pulse: create metric", "name", "codestats.delivery.cycles", "error", err)
		m.cycles, _ = fallback.Int64Counter("codestats.delivery.cycles")
	}
	if m.backlogLength, err = meter.Int64Gauge("codestats.backlog.size",
		metric.WithDescription("Pulses waiting for retry after the last cycle"), metric.WithUnit("{pulse}")); err != nil {
		logger.Warn("pulse: create metric", "name", "codestats.backlog.size", "error", err)
		m.backlogLength, _ = fallback.Int64Gauge("codestats.backlog.size")
	}
	return m
}

func (m *metrics) recordXP(ctx context.Context, language string, amount int64) {
	m.xpRecorded.Add(ctx, amount, metric.WithAttributes(attribute.String("language", language)))
}

func (m *metrics) recordCycle(ctx context.Context, sent, failed, backlog int) {
	m.cycles.Add(ctx, 1)
	if sent > 0 {
		m.pulsesSent.Add(ctx, int64(sent))
	}
	if failed > 0 {
		m.pulsesFailed.Add(ctx, int64(failed))
	}
	m.backlogLength.Record(ctx, int64(backlog))
}
