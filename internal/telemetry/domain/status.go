// Package domain holds the status events surfaced to the user while pulses are delivered.
package domain

import "time"

// StatusKind classifies a status event.
type StatusKind string

const (
	// StatusSubmitting is emitted when a delivery cycle starts sending pulses.
	StatusSubmitting StatusKind = "submitting"
	// StatusRejected is emitted when the API answers with a status other than 201.
	StatusRejected StatusKind = "rejected"
	// StatusError is emitted on transport failures (DNS, connection, timeout).
	StatusError StatusKind = "error"
	// StatusMissingSettings is emitted when the API URL or key is not configured.
	StatusMissingSettings StatusKind = "missing_settings"
	// StatusCleared clears a previously shown failure after a fully successful cycle.
	StatusCleared StatusKind = "cleared"
)

// Status is one transient, human-readable message. Delivery of statuses is best-effort.
type Status struct {
	ID      string
	CycleID string // empty outside a delivery cycle
	Kind    StatusKind
	// Message is the text shown to the user; empty for StatusCleared.
	Message    string
	StatusCode int // HTTP status for StatusRejected, otherwise 0
	CreatedAt  time.Time
}
