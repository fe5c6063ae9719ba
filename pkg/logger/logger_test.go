package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name string
		want Level
	}{
		{"debug", LevelDebug},
		{" INFO ", LevelInfo},
		{"warning", LevelWarn},
		{"Warn", LevelWarn},
		{"error", LevelError},
		{"", LevelInfo},
		{"verbose", LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.name))
		})
	}
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "UNKNOWN", Level(9).String())
}

func TestSubscribe(t *testing.T) {
	l := Discard()
	entries := l.Subscribe()

	l.Debug("hidden")
	l.Info("saved %d rows", 3)
	l.With("kernel", "k1").With("type", "Person").Warn("slow")
	l.SetLevel(LevelError)
	l.Warnf("dropped")
	l.Errorf("failed: %s", "boom")

	var got []LogEntry
	for len(entries) > 0 {
		got = append(got, <-entries)
	}
	require.Len(t, got, 3)

	assert.Equal(t, "INFO", got[0].Level)
	assert.Equal(t, "saved 3 rows", got[0].Message)
	assert.Nil(t, got[0].Fields)

	assert.Equal(t, "WARN", got[1].Level)
	assert.Equal(t, map[string]string{"kernel": "k1", "type": "Person"}, got[1].Fields)

	assert.Equal(t, "ERROR", got[2].Level)
	assert.Equal(t, "failed: boom", got[2].Message)
}

func TestWithFieldsCopies(t *testing.T) {
	fields := map[string]string{"a": "1"}
	c := Discard().WithFields(fields)
	fields["a"] = "2"
	assert.Equal(t, "1", c.fields["a"])

	child := c.With("b", "3")
	assert.Len(t, c.fields, 1)
	assert.Len(t, child.fields, 2)
}

func TestFormatting(t *testing.T) {
	assert.Len(t, formatComponent("persist"), ComponentWidth)
	assert.Equal(t, "a_very_long_com…", formatComponent("a_very_long_component_name"))
	assert.Equal(t, "", formatFields(nil))
	assert.Equal(t, " a=1 b=2", formatFields(map[string]string{"b": "2", "a": "1"}))
	assert.Equal(t, "ℹ INFO ", formatLogLevel("INFO"))
}
