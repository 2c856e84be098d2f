// Package logging builds the docqd zap logger from configuration.
package logging

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/docqd/internal/config"
)

// New creates a zap logger from the logging configuration.
//
// Format is "json" (production) or "console" (development). Constant fields
// from the config are attached to every entry; the service name is always
// present.
func New(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch cfg.Format {
	case "console":
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	case "json", "":
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	default:
		return nil, fmt.Errorf("logging format must be 'json' or 'console', got %q", cfg.Format)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level)

	logger := zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)

	fields := make([]zap.Field, 0, len(cfg.Fields)+1)
	if _, ok := cfg.Fields["service"]; !ok {
		fields = append(fields, zap.String("service", "docqd"))
	}
	for k, v := range cfg.Fields {
		fields = append(fields, zap.String(k, v))
	}

	return logger.With(fields...), nil
}

// Sync flushes buffered entries, ignoring the harmless stdout sync errors
// Linux returns (EINVAL, ENOTTY).
func Sync(logger *zap.Logger) error {
	err := logger.Sync()
	if err == nil {
		return nil
	}
	var errno syscall.Errno
	if errors.As(err, &errno) && (errno == syscall.EINVAL || errno == syscall.ENOTTY) {
		return nil
	}
	return err
}
