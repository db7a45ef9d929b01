package logger

import (
	"testing"

	"github.com/eternalApril/moonview/internal/config"
	"github.com/eternalApril/moonview/internal/core"
	"github.com/eternalApril/moonview/internal/result"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.LogConfig
		want zapcore.Level
	}{
		{"debug json", config.LogConfig{Level: "debug", Format: "json"}, zapcore.DebugLevel},
		{"warn console", config.LogConfig{Level: "warn", Format: "console"}, zapcore.WarnLevel},
		{"bad level", config.LogConfig{Level: "loud"}, zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.cfg)
			require.NoError(t, err)
			assert.True(t, log.Core().Enabled(tt.want))
			assert.False(t, log.Core().Enabled(tt.want-1))
		})
	}
}

func TestObserver(t *testing.T) {
	obsCore, logs := observer.New(zap.DebugLevel)
	root := result.NewRoot("GET k", NewObserver(zap.New(obsCore)))

	cmd := result.NewCommand(root, "GET k")
	result.AppendChild(cmd, core.MakeString("v"))
	cmd.SetValue(core.MakeString("done"))

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "node added", entries[0].Message)
	assert.Equal(t, "GET k", entries[0].ContextMap()["cmd"])
	assert.Equal(t, "v", entries[1].ContextMap()["value"])
	assert.Equal(t, "node updated", entries[2].Message)
	assert.Equal(t, "result", entries[2].LoggerName)
}

func TestObserver_InfoLevelIsSilent(t *testing.T) {
	obsCore, logs := observer.New(zap.InfoLevel)
	root := result.NewRoot("PING", NewObserver(zap.New(obsCore)))
	result.AppendChild(root, core.MakeString("PONG"))

	assert.Zero(t, logs.Len())
}
