package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewWithFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithFormat(&buf, slog.LevelInfo, FormatJSON)
	logger.Debug("hidden")
	logger.Info("Task finished", "error", errors.New("boom"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"err":"boom"`)

	buf.Reset()
	NewWithFormat(&buf, slog.LevelInfo, FormatText).Warn("careful", "error", "x")
	assert.Contains(t, buf.String(), "err=x")
}
