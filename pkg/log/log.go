// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logger used across the exchange. Keys and values
// alternate in kv, zap sugared style.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
	Fatal(msg string, kv ...any)
	With(kv ...any) Logger
	Sync() error
}

type zapLogger struct {
	log *zap.SugaredLogger
}

// New creates a production logger at info level.
func New() Logger {
	return NewWithLevel("info")
}

// NewWithLevel creates a logger with a specific level.
func NewWithLevel(level string) Logger {
	lvl := zapcore.InfoLevel
	switch level {
	case "debug":
		lvl = zapcore.DebugLevel
	case "info":
		lvl = zapcore.InfoLevel
	case "warn":
		lvl = zapcore.WarnLevel
	case "error":
		lvl = zapcore.ErrorLevel
	case "fatal":
		lvl = zapcore.FatalLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true

	log, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return &noOpLogger{}
	}
	return &zapLogger{log: log.Sugar()}
}

// NewLogger creates a named logger at info level.
func NewLogger(name string) Logger {
	return NewWithLevel("info").With("component", name)
}

// NoOp returns a logger that discards everything.
func NoOp() Logger {
	return &noOpLogger{}
}

// NoLog is a shared no-op logger instance.
var NoLog = NoOp()

func (l *zapLogger) Debug(msg string, kv ...any) { l.log.Debugw(msg, kv...) }
func (l *zapLogger) Info(msg string, kv ...any)  { l.log.Infow(msg, kv...) }
func (l *zapLogger) Warn(msg string, kv ...any)  { l.log.Warnw(msg, kv...) }
func (l *zapLogger) Error(msg string, kv ...any) { l.log.Errorw(msg, kv...) }
func (l *zapLogger) Fatal(msg string, kv ...any) { l.log.Fatalw(msg, kv...) }

func (l *zapLogger) With(kv ...any) Logger {
	return &zapLogger{log: l.log.With(kv...)}
}

func (l *zapLogger) Sync() error { return l.log.Sync() }

type noOpLogger struct{}

func (n *noOpLogger) Debug(msg string, kv ...any) {}
func (n *noOpLogger) Info(msg string, kv ...any)  {}
func (n *noOpLogger) Warn(msg string, kv ...any)  {}
func (n *noOpLogger) Error(msg string, kv ...any) {}
func (n *noOpLogger) Fatal(msg string, kv ...any) {}
func (n *noOpLogger) With(kv ...any) Logger       { return n }
func (n *noOpLogger) Sync() error                 { return nil }
