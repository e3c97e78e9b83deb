package logger

import (
	"bytes"
	"encoding/json"
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
		{"INFO", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestSlogLogger_Errorf(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogLoggerWithWriter(&buf, slog.LevelInfo)

	log.Errorf(errors.New("boom"), "load failed: %s", "v1")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "ERROR", rec["level"])
	assert.Equal(t, "load failed: v1", rec["msg"])
	assert.Equal(t, "boom", rec["error"])
}

func TestSlogLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogLoggerWithWriter(&buf, slog.LevelWarn)

	log.Debugf("hidden")
	log.Infof("hidden too")
	assert.Zero(t, buf.Len())

	Component(log, "snapshot").Warnf("%d stale", 3)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "3 stale", rec["msg"])
	assert.Equal(t, "snapshot", rec["component"])
}

func TestNewSlogLoggerWithFormat_Text(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogLoggerWithFormat(&buf, slog.LevelInfo, " TEXT ")

	log.Infof("uploaded %s", "v1/index.bin")
	assert.Contains(t, buf.String(), `msg="uploaded v1/index.bin"`)
	assert.Contains(t, buf.String(), "level=INFO")
}
