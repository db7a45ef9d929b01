package logger

import (
	"github.com/eternalApril/moonview/internal/config"
	"github.com/eternalApril/moonview/internal/core"
	"github.com/eternalApril/moonview/internal/result"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a configured logger
// level: "debug", "info", "warn", "error"
// format: "json" (production) or "console" (development)
func New(cfg config.LogConfig) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	encoding := cfg.Format
	if encoding != "json" {
		encoding = "console"
	}

	output := cfg.Output
	if len(output) == 0 {
		output = []string{"stderr"}
	}

	zc := zap.Config{
		Level:       zap.NewAtomicLevelAt(lvl),
		Development: encoding == "console",
		Encoding:    encoding,
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      output,
		ErrorOutputPaths: []string{"stderr"},
	}

	return zc.Build()
}

// NewObserver returns a result tree observer writing every mutation as a debug line
func NewObserver(log *zap.Logger) result.Observer {
	log = log.Named("result")
	return result.ObserverFuncs{
		OnChildrenAdded: func(child *result.Node) {
			if !log.Core().Enabled(zap.DebugLevel) {
				return
			}
			fields := []zap.Field{
				zap.Stringer("tree", child.ID()),
				zap.Stringer("kind", child.Kind()),
			}
			if child.Kind() == result.KindCommand {
				fields = append(fields, zap.String("cmd", child.Text()))
			} else {
				fields = append(fields, zap.String("value", child.Value().Render(" ")))
			}
			log.Debug("node added", fields...)
		},
		OnUpdated: func(node *result.Node, value core.Value) {
			if !log.Core().Enabled(zap.DebugLevel) {
				return
			}
			log.Debug("node updated",
				zap.Stringer("tree", node.ID()),
				zap.Stringer("kind", node.Kind()),
				zap.String("value", value.Render(" ")),
			)
		},
	}
}
