package logging

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		wantErr   bool
		wantLevel zapcore.Level
	}{
		{"production", Config{Level: "info"}, false, zapcore.InfoLevel},
		{"development", Config{Level: "debug", Development: true}, false, zapcore.DebugLevel},
		{"empty level means info", Config{}, false, zapcore.InfoLevel},
		{"warn", Config{Level: "warn"}, false, zapcore.WarnLevel},
		{"bad level", Config{Level: "loud"}, true, zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.wantLevel))
			assert.False(t, logger.Core().Enabled(tt.wantLevel-1))
		})
	}
}

func TestNewWritesToOutputPaths(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxy.log")
	logger, err := New(Config{OutputPaths: []string{path}})
	require.NoError(t, err)

	logger.Info("listening")
	logger.Sync()
	assert.FileExists(t, path)
}

func TestForComponent(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := &Logger{Logger: zap.New(core).Named(RootName)}

	logger.ForComponent("destination").Info("fetched", zap.String("session_id", "a1b2c3"))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "proxy.destination", entries[0].LoggerName)
	assert.Equal(t, "a1b2c3", entries[0].ContextMap()["session_id"])
}

func TestNop(t *testing.T) {
	logger := NewNop()
	logger.Info("discarded")
	logger.Sync()
}
