package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name       string
		jsonOutput bool
		verbosity  int
		wantLevel  zapcore.Level
	}{
		{name: "JSON output mode", jsonOutput: true, verbosity: 0, wantLevel: zapcore.WarnLevel},
		{name: "Console output mode", jsonOutput: false, verbosity: 1, wantLevel: zapcore.InfoLevel},
		{name: "Console debug", jsonOutput: false, verbosity: 2, wantLevel: zapcore.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Cleanup(func() {
				Logger = zap.NewNop().Sugar()
				JSONOutput = false
			})

			require.NoError(t, Initialize(tt.jsonOutput, tt.verbosity))
			require.NotNil(t, Logger)
			assert.Equal(t, tt.jsonOutput, JSONOutput)
			assert.True(t, Logger.Desugar().Core().Enabled(tt.wantLevel))
			if tt.wantLevel > zapcore.DebugLevel {
				assert.False(t, Logger.Desugar().Core().Enabled(tt.wantLevel-1))
			}
		})
	}
}

func TestVerbosityToLevel(t *testing.T) {
	assert.Equal(t, zapcore.WarnLevel, VerbosityToLevel(-1))
	assert.Equal(t, zapcore.WarnLevel, VerbosityToLevel(VerbosityUser))
	assert.Equal(t, zapcore.InfoLevel, VerbosityToLevel(VerbosityInfo))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(VerbosityDebug))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(7))

	assert.False(t, ShouldLogTrace(VerbosityDebug))
	assert.True(t, ShouldLogTrace(VerbosityTrace))
	assert.Equal(t, "Debug (-vv)", LevelName(VerbosityDebug))
}

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core).Sugar()

	ctx := WithComponent(WithRequestID(context.Background(), "req-1"), "server")
	FromContext(ctx, base).Infow("handled")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields[FieldRequestID])
	assert.Equal(t, "server", fields[FieldComponent])

	assert.Same(t, base, FromContext(context.Background(), base))
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	l := zap.NewExample().Sugar()
	assert.Same(t, l, OrNop(l))
}

func TestDebugwUsesGlobalLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	Logger = zap.New(core).Sugar()
	t.Cleanup(func() { Logger = zap.NewNop().Sugar() })

	Debugw("Running command", "command", "histsync sync")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "Running command", logs.All()[0].Message)
	assert.Equal(t, "histsync sync", logs.All()[0].ContextMap()["command"])

	Logger = nil
	assert.NotPanics(t, func() { Debugw("dropped") })
}
