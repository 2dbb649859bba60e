package main

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newLogger builds the daemon logger. The json format uses the production
// encoder, console the development one.
func newLogger(level string, format string) (*zap.Logger, error) {

	var cfg zap.Config
	switch format {
	case "console":
		cfg = zap.NewDevelopmentConfig()
	case "json":
		cfg = zap.NewProductionConfig()
	default:
		return nil, errors.Errorf("unknown log format %s", format)
	}

	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return nil, errors.Wrapf(err, "invalid log level %s", level)
	}
	cfg.Level = zap.NewAtomicLevelAt(l)
	cfg.DisableStacktrace = l > zapcore.DebugLevel

	return cfg.Build()
}
