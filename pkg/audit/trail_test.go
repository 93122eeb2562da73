package audit

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// setupTestLogger creates a test logger with an observer to capture log entries.
func setupTestLogger(t *testing.T) (*zap.Logger, *observer.ObservedLogs) {
	t.Helper()
	core, recorded := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	return logger, recorded
}

func TestTrail_RecordAllowed(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	trail := NewTrail(logger)

	sessionID := uuid.New()
	trail.Record(AccessEvent{
		SessionID: sessionID,
		Operation: "write",
		Path:      "/workspaces/1_2_demo/index.html",
		Allowed:   true,
	})

	entries := recorded.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "Workspace operation allowed", entries[0].Message)

	fields := entries[0].ContextMap()
	assert.Equal(t, sessionID.String(), fields["session_id"])
	assert.Equal(t, "write", fields["operation"])

	// The embedded JSON event must round-trip
	var event AccessEvent
	require.NoError(t, json.Unmarshal([]byte(fields["event_json"].(string)), &event))
	assert.True(t, event.Allowed)
	assert.False(t, event.Timestamp.IsZero())
}

func TestTrail_RecordDeniedIsWarn(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	trail := NewTrail(logger)

	trail.Record(AccessEvent{
		SessionID:  uuid.New(),
		Operation:  "execute",
		Path:       "/etc/passwd",
		Allowed:    false,
		Privileged: true,
		Reason:     "path escapes workspace",
	})

	entries := recorded.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "Workspace operation denied", entries[0].Message)

	fields := entries[0].ContextMap()
	assert.Equal(t, true, fields["privileged"])
	assert.Equal(t, "path escapes workspace", fields["reason"])
}
