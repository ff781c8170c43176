// Package logging centralizes construction of the structured logger
// shared by the coordinator, router, registry, lifecycle and transport
// components.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls logger construction from CLI/config flags.
type Options struct {
	Level  string // debug|info|warn|error
	Format string // json|console
}

// New builds a *zap.Logger per the given options, falling back to
// info/json on an unrecognized level or format rather than failing
// startup over a logging knob.
func New(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		if err := level.Set(opts.Level); err != nil {
			level = zapcore.InfoLevel
		}
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if opts.Format == "console" {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(level)
	}

	return cfg.Build()
}

// Nop returns a logger that discards all output, for tests and
// components that don't want to thread a real logger through.
func Nop() *zap.Logger { return zap.NewNop() }

// Fields used consistently across components so log lines can be
// correlated by session, client, and instance.
const (
	FieldSession  = "session_id"
	FieldClient   = "client_id"
	FieldInstance = "instance_id"
	FieldOp       = "op"
)
