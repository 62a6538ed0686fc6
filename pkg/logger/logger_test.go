package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	return entry
}

func TestErrorIncludesContextFieldsAndStack(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "api", Env: "test", Format: FormatJSON, Output: buf})

	ctx := log.WithRequestID(context.Background(), "req-123")
	log.Error(ctx, "checkout failed", errors.New("boom"))

	entry := decodeEntry(t, buf)
	assert.Equal(t, "req-123", entry["request_id"])
	assert.Equal(t, "api", entry["service"])
	assert.Equal(t, "test", entry["env"])
	assert.Equal(t, "boom", entry["error"])
	assert.NotEmpty(t, entry["stack"])
}

func TestWarnStackToggle(t *testing.T) {
	buf := &bytes.Buffer{}
	New(Options{ServiceName: "test", Format: FormatJSON, Output: buf}).Warn(context.Background(), "balance.drift_detected")
	assert.NotContains(t, decodeEntry(t, buf), "stack")

	buf.Reset()
	New(Options{ServiceName: "test", Format: FormatJSON, Output: buf, WarnStack: true}).Warn(context.Background(), "balance.drift_detected")
	assert.Contains(t, decodeEntry(t, buf), "stack")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("invalid"))
	assert.Equal(t, zerolog.DebugLevel, ParseLevel(" DEBUG "))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warn"))
}

func TestDebugSuppressedAtInfo(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Format: FormatJSON, Output: buf})
	log.Debug(context.Background(), "noise")
	assert.Zero(t, buf.Len())
}

func TestConfiguredLevelIsApplied(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: "debug", Format: FormatJSON, Output: buf})
	log.Debug(context.Background(), "ledger.lock_wait")
	assert.Equal(t, "debug", decodeEntry(t, buf)["level"])

	buf.Reset()
	log = New(Options{ServiceName: "test", Level: "warn", Format: FormatJSON, Output: buf})
	log.Info(context.Background(), "order.created")
	assert.Zero(t, buf.Len())
}

func TestFieldsAreScopedToContext(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Format: FormatJSON, Output: buf})

	base := context.Background()
	scoped := log.WithUserID(base, "user-42")
	scoped = log.WithActorRole(scoped, "admin")
	scoped = log.WithAmount(scoped, "amount", decimal.RequireFromString("-30"))
	scoped = log.WithFields(scoped, map[string]any{"order_number": "ORD-20260101-AB12", "refund": true})

	log.Info(scoped, "order.cancelled")
	entry := decodeEntry(t, buf)
	assert.Equal(t, "user-42", entry["user_id"])
	assert.Equal(t, "admin", entry["actor_role"])
	assert.Equal(t, "-30.00", entry["amount"])
	assert.Equal(t, "ORD-20260101-AB12", entry["order_number"])
	assert.Equal(t, true, entry["refund"])

	buf.Reset()
	log.Info(base, "plain")
	assert.NotContains(t, decodeEntry(t, buf), "user_id")
}
