package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestResolveLevel(t *testing.T) {
	tests := []struct {
		env   string
		level string
		want  zapcore.Level
	}{
		{env: "local", want: zapcore.DebugLevel},
		{env: "development", want: zapcore.DebugLevel},
		{env: "", want: zapcore.DebugLevel},
		{env: "production", want: zapcore.InfoLevel},
		{env: "staging", want: zapcore.InfoLevel},
		{env: "production", level: "warn", want: zapcore.WarnLevel},
		{env: "local", level: " error ", want: zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		lvl, err := resolveLevel(tt.env, tt.level)
		require.NoError(t, err)
		assert.Equal(t, tt.want, lvl.Level(), "env=%q level=%q", tt.env, tt.level)
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New("production", "loud")
	require.Error(t, err)
}

func TestNew(t *testing.T) {
	logger, err := New("production", "")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}
