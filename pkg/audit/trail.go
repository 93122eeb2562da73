// Package audit provides an append-only audit trail for workspace access
// decisions. Every guard decision is logged in structured JSON so the records
// can be shipped to SIEM tooling and replayed per session.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AccessEvent is one guard decision. Events are emitted in order within a
// session; ordering across sessions is not guaranteed.
type AccessEvent struct {
	Timestamp  time.Time `json:"timestamp"`
	SessionID  uuid.UUID `json:"session_id"`
	Operation  string    `json:"operation"`
	Path       string    `json:"path"`
	Allowed    bool      `json:"allowed"`
	Privileged bool      `json:"privileged"`
	Reason     string    `json:"reason,omitempty"`
}

// Trail logs access events. Safe for concurrent writers; the underlying zap
// core serializes appends.
type Trail struct {
	logger *zap.Logger
}

// NewTrail creates an audit trail with a dedicated logger namespace so
// workspace access records are easy to filter downstream.
func NewTrail(logger *zap.Logger) *Trail {
	return &Trail{logger: logger.Named("workspace_audit")}
}

// Record appends one access decision to the trail. Denials are logged at WARN
// so they surface in monitoring; allowed operations at INFO.
func (t *Trail) Record(event AccessEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	// Marshaling known types does not fail
	eventJSON, _ := json.Marshal(event)

	fields := []zap.Field{
		zap.String("event_json", string(eventJSON)),
		zap.String("session_id", event.SessionID.String()),
		zap.String("operation", event.Operation),
		zap.String("path", event.Path),
		zap.Bool("privileged", event.Privileged),
		zap.String("reason", event.Reason),
	}

	if event.Allowed {
		t.logger.Info("Workspace operation allowed", fields...)
	} else {
		t.logger.Warn("Workspace operation denied", fields...)
	}
}
