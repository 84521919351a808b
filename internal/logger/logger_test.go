package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew_Modes(t *testing.T) {
	tests := []struct {
		mode    string
		debugOn bool
	}{
		{"prod", false},
		{"PRODUCTION", false},
		{"dev", true},
		{"", true},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			l, err := New(tt.mode)
			require.NoError(t, err)
			require.NotNil(t, l.SugaredLogger)
			assert.Equal(t, tt.debugOn, l.SugaredLogger.Desugar().Core().Enabled(zapcore.DebugLevel))
			assert.True(t, l.SugaredLogger.Desugar().Core().Enabled(zapcore.InfoLevel))
		})
	}
}

func TestNop_DiscardsAndWith(t *testing.T) {
	l := Nop().With("component", "test")

	assert.NotPanics(t, func() {
		l.Debug("d", "k", 1)
		l.Info("i")
		l.Warn("w", "err", "boom")
		l.Error("e")
		l.Sync()
	})
	assert.False(t, l.SugaredLogger.Desugar().Core().Enabled(zapcore.ErrorLevel))
}
