package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{" INFO ", zapcore.InfoLevel},
		{"warning", zapcore.WarnLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.WarnLevel},
		{"verbose", zapcore.WarnLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in, zapcore.WarnLevel), "input %q", tt.in)
	}
}

func TestNewWritesConsoleAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a-eye.log")
	var console bytes.Buffer

	logger := New(Options{FilePath: path, Console: &console})
	logger.Info("job finished", zap.String("job_id", "abc"))
	logger.Debug("hidden at info level")
	_ = logger.Sync()

	assert.Contains(t, console.String(), "job finished")
	assert.NotContains(t, console.String(), "hidden at info level")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	line := strings.TrimSpace(string(data))
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "job finished", entry["message"])
	assert.Equal(t, "abc", entry["job_id"])
	assert.Equal(t, "info", entry["level"])
}

func TestNewDevelopmentEnablesDebug(t *testing.T) {
	var console bytes.Buffer

	logger := New(Options{Development: true, Console: &console})
	logger.Debug("parsing line")
	_ = logger.Sync()

	assert.Contains(t, console.String(), "parsing line")
}

func TestNewLevelOverride(t *testing.T) {
	var console bytes.Buffer

	logger := New(Options{Development: true, Level: "error", Console: &console})
	logger.Warn("not shown")
	_ = logger.Sync()

	assert.Empty(t, console.String())
}
