package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"code-stats-daemon/internal/telemetry"
	"code-stats-daemon/internal/telemetry/domain"
)

// recordEmitter is the part of otellog.Logger the adapter needs.
type recordEmitter interface {
	Emit(ctx context.Context, record otellog.Record)
}

// NewStatusEmitter returns a StatusEmitter that sends statuses as OTel log records via the given LoggerProvider.
// If provider is nil, returns a no-op emitter.
func NewStatusEmitter(provider *sdklog.LoggerProvider) telemetry.StatusEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: provider.Logger("codestats.status")}
}

// NewStatusEmitterWithLogger wraps an existing record emitter, e.g. a test capture.
func NewStatusEmitterWithLogger(logger recordEmitter) telemetry.StatusEmitter {
	if logger == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: logger}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *domain.Status) error { return nil }

type otelEmitter struct {
	logger recordEmitter
}

// Emit converts the status to an OTel log record and emits it.
func (e *otelEmitter) Emit(ctx context.Context, status *domain.Status) error {
	if status == nil {
		return nil
	}
	rec := otellog.Record{}
	if !status.CreatedAt.IsZero() {
		rec.SetTimestamp(status.CreatedAt)
	} else {
		rec.SetTimestamp(time.Now().UTC())
	}
	severity, text := severityFor(status.Kind)
	rec.SetSeverity(severity)
	rec.SetSeverityText(text)
	if status.Message != "" {
		rec.SetBody(otellog.StringValue(status.Message))
	}
	rec.AddAttributes(otellog.String("status.kind", string(status.Kind)))
	if status.ID != "" {
		rec.AddAttributes(otellog.String("status.id", status.ID))
	}
	if status.CycleID != "" {
		rec.AddAttributes(otellog.String("delivery.cycle_id", status.CycleID))
	}
	if status.StatusCode != 0 {
		rec.AddAttributes(otellog.Int("http.response.status_code", status.StatusCode))
	}
	e.logger.Emit(ctx, rec)
	return nil
}

func severityFor(kind domain.StatusKind) (otellog.Severity, string) {
	switch kind {
	case domain.StatusRejected, domain.StatusError, domain.StatusMissingSettings:
		return otellog.SeverityWarn, "WARN"
	default:
		return otellog.SeverityInfo, "INFO"
	}
}
