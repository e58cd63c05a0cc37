package pulse

import (
	"context"
	"log/slog"

	"code-stats-daemon/internal/activity"
)

// Tracker turns editor events into XP on the queue and arms the delivery timer.
type Tracker struct {
	queue      *Queue
	timer      *Timer
	classifier activity.Classifier
	ready      func() bool
	metrics    *metrics
	logger     *slog.Logger
}

// NewTracker returns a Tracker. ready gates recording until configuration has loaded;
// nil means always ready.
func NewTracker(queue *Queue, timer *Timer, classifier activity.Classifier, ready func() bool, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	if classifier == nil {
		classifier = activity.SyntaxClassifier{}
	}
	if ready == nil {
		ready = func() bool { return true }
	}
	return &Tracker{
		queue:      queue,
		timer:      timer,
		classifier: classifier,
		ready:      ready,
		metrics:    newMetrics(nil, logger),
		logger:     logger,
	}
}

// HandleEvent credits one XP for a genuine edit and reports whether it did. It performs no I/O.
func (t *Tracker) HandleEvent(ctx context.Context, ev activity.Event) bool {
	if !t.ready() {
		return false
	}
	if !t.classifier.IsGenuineUserEdit(ev) {
		return false
	}
	language := t.classifier.ActiveLanguage(ev)
	if language == "" {
		return false
	}
	if err := t.queue.Record(language, 1); err != nil {
		t.logger.Warn("pulse: record activity", "language", language, "error", err)
		return false
	}
	t.metrics.recordXP(ctx, language, 1)
	if t.timer != nil && t.timer.OnActivity() {
		t.logger.Debug("pulse: timer armed", "delay", t.timer.Delay())
	}
	return true
}
