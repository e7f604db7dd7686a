package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Standard field names.
const (
	FieldWorkerID    = "worker_id"
	FieldExecutionID = "execution_id"
	FieldTemplateID  = "template_id"
	FieldScheduledID = "scheduled_task_id"
	FieldTargetID    = "target_id"
	FieldComponent   = "component"
	FieldError       = "error"
	FieldCount       = "count"
)

// New builds a sugared logger. format is "json" or "console" (default);
// level is a zap level name, info when empty or unknown.
func New(level, format string) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	if strings.EqualFold(format, "json") {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.Development = false
	}

	lvl := zap.InfoLevel
	if level != "" {
		if parsed, err := zapcore.ParseLevel(level); err == nil {
			lvl = parsed
		}
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}

// Component returns a child logger tagged with the component name.
func Component(l *zap.SugaredLogger, name string) *zap.SugaredLogger {
	if l == nil {
		l = zap.NewNop().Sugar()
	}
	return l.With(FieldComponent, name)
}
