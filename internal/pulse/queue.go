// Package pulse aggregates editing activity into pulses and delivers them to the code-stats API.
package pulse

import (
	"log/slog"
	"sync"
	"time"

	"code-stats-daemon/internal/pulse/domain"
)

// Queue holds the pulse currently accumulating XP and the backlog of
// serialized pulses that failed delivery. Queue is safe for concurrent use.
type Queue struct {
	mu      sync.Mutex
	current *domain.Pulse
	backlog []domain.Payload
	// maxBacklog bounds the backlog; zero means unbounded.
	maxBacklog int
	dropped    int
	nowF       func() time.Time
	logger     *slog.Logger
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithMaxBacklog bounds the retry backlog. Oldest entries are dropped first. Zero disables the bound.
func WithMaxBacklog(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.maxBacklog = n
		}
	}
}

// WithQueueClock sets the time source used to stamp serialized pulses.
func WithQueueClock(now func() time.Time) QueueOption {
	return func(q *Queue) {
		if now != nil {
			q.nowF = now
		}
	}
}

// WithQueueLogger sets the logger used when backlog entries are dropped.
func WithQueueLogger(logger *slog.Logger) QueueOption {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// NewQueue returns an empty queue.
func NewQueue(opts ...QueueOption) *Queue {
	q := &Queue{
		nowF:   time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// GetOrCreateCurrent returns the open pulse, creating one if there is none
// or the current one has already been serialized for delivery.
func (q *Queue) GetOrCreateCurrent() *domain.Pulse {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.currentLocked()
}

func (q *Queue) currentLocked() *domain.Pulse {
	if q.current == nil || q.current.Sealed() {
		q.current = domain.NewPulse()
	}
	return q.current
}

// Record credits amount XP to language on the open pulse.
func (q *Queue) Record(language string, amount int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.currentLocked().Add(language, amount)
}

// TakePending returns the backlog followed by the serialized current pulse, if
// it holds any XP. The current pulse is sealed but state is not cleared; call
// Reset with the records that failed once delivery has been attempted.
func (q *Queue) TakePending() []domain.Payload {
	q.mu.Lock()
	defer q.mu.Unlock()
	pending := make([]domain.Payload, 0, len(q.backlog)+1)
	pending = append(pending, q.backlog...)
	if q.current == nil || q.current.Empty() {
		return pending
	}
	payload, err := q.current.Serialize(q.nowF())
	if err != nil {
		// Record only holds strings and ints; marshaling cannot fail.
		q.logger.Error("pulse: serialize current pulse", "error", err)
		return pending
	}
	return append(pending, payload)
}

// Reset drops the pulse sealed by TakePending and replaces the backlog with failed.
// A pulse opened after TakePending keeps its XP.
func (q *Queue) Reset(failed []domain.Payload) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current != nil && q.current.Sealed() {
		q.current = nil
	}
	backlog := make([]domain.Payload, len(failed))
	copy(backlog, failed)
	if q.maxBacklog > 0 && len(backlog) > q.maxBacklog {
		drop := len(backlog) - q.maxBacklog
		q.dropped += drop
		q.logger.Warn("pulse: backlog full, dropping oldest pulses", "dropped", drop, "max_backlog", q.maxBacklog)
		backlog = backlog[drop:]
	}
	q.backlog = backlog
}

// State is a point-in-time copy of the queue.
type State struct {
	// Current maps language to XP for the open pulse; nil when there is none.
	Current map[string]int64
	// Languages lists Current's keys in sorted order.
	Languages []string
	Backlog []domain.Payload
	// Dropped counts backlog entries discarded because of the backlog bound.
	Dropped int
}

// Snapshot returns a copy of the queue state.
func (q *Queue) Snapshot() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	var s State
	if q.current != nil && !q.current.Empty() {
		s.Current = q.current.Counts()
		s.Languages = q.current.Languages()
	}
	s.Backlog = make([]domain.Payload, len(q.backlog))
	copy(s.Backlog, q.backlog)
	s.Dropped = q.dropped
	return s
}

// BacklogLen returns the number of pulses awaiting retry.
func (q *Queue) BacklogLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.backlog)
}
