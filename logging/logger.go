// Package logging - Structured loggers for the demo server and evaluation workers.
package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures a logger.
type Options struct {
	// Name is the logger name, e.g. "test" for evaluation workers.
	Name string
	// Level is a zap level string; empty means info.
	Level string
	// Dir, when set, adds a rotating "<Dir>/<Name>.log" file sink.
	Dir string
	// JSON switches the console encoder from human readable to JSON.
	JSON bool
	// Quiet drops the console sink, leaving only the file.
	Quiet bool
}

// New builds a logger that writes to stderr and optionally to a rotated file.
//
// Arguments:
//   - opts: The logger options.
//
// Returns:
//   - *zap.Logger: The logger. Call Sync before exit.
//   - error: An error if the level cannot be parsed.
func New(opts Options) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, err
		}
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var cores []zapcore.Core
	if !opts.Quiet {
		var enc zapcore.Encoder
		if opts.JSON {
			enc = zapcore.NewJSONEncoder(encoderCfg)
		} else {
			consoleCfg := encoderCfg
			consoleCfg.EncodeLevel = zapcore.CapitalLevelEncoder
			enc = zapcore.NewConsoleEncoder(consoleCfg)
		}
		cores = append(cores, zapcore.NewCore(enc, zapcore.Lock(os.Stderr), level))
	}

	if opts.Dir != "" {
		name := opts.Name
		if name == "" {
			name = "app"
		}
		file := &lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, name+".log"),
			MaxSize:    100,
			MaxBackups: 3,
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(file), level))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	if opts.Name != "" {
		logger = logger.Named(opts.Name)
	}
	return logger, nil
}

// WithRank tags every entry with the worker rank.
func WithRank(logger *zap.Logger, rank int) *zap.Logger {
	return logger.With(zap.Int("rank", rank))
}

// WithOperation enriches the logger with operation and request identifiers.
func WithOperation(logger *zap.Logger, operation, requestID string) *zap.Logger {
	fields := []zap.Field{zap.String("operation", operation)}
	if requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	return logger.With(fields...)
}
