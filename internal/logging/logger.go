// Package logging wraps zap behind a small facade so call sites never
// import zap directly, in the shape of quantmind-br-gendocs's
// internal/logging package: a JSON core to a file, a colorized console
// core to stderr, combined with zapcore.NewTee when both are enabled.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewRunID mints a correlation ID for one pipeline run.
func NewRunID() string {
	return uuid.NewString()
}

// Field is a structured logging field; the constructors below are the only
// way call sites build one; zap is otherwise an implementation detail.
type Field = zap.Field

var (
	String   = zap.String
	Int      = zap.Int
	Int64    = zap.Int64
	Float64  = zap.Float64
	Bool     = zap.Bool
	Any      = zap.Any
	Duration = zap.Duration
	Time     = zap.Time
)

// Error builds an "error" field from an error value.
func Error(err error) Field {
	return zap.Error(err)
}

// Config controls where and how verbosely a Logger writes.
type Config struct {
	LogDir         string
	FileLevel      zapcore.Level
	ConsoleLevel   zapcore.Level
	ConsoleEnabled bool
	EnableCaller   bool
}

// DefaultConfig matches the defaults spec §6 implies for ambient logging:
// info to console, debug to a rotating-by-run file, caller info off.
func DefaultConfig() Config {
	return Config{
		LogDir:         filepath.Join(os.TempDir(), "dl-organize-dedupe"),
		FileLevel:      zapcore.DebugLevel,
		ConsoleLevel:   zapcore.InfoLevel,
		ConsoleEnabled: true,
	}
}

// LevelFromString parses a CLI/config level name, defaulting to Info for an
// unrecognized string rather than failing the whole run over a log setting.
func LevelFromString(s string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// Logger is the facade every package in this module logs through.
type Logger struct {
	zap *zap.Logger
}

// NewLogger builds a Logger writing JSON lines to a per-run file under
// cfg.LogDir and, when enabled, colorized lines to stderr.
func NewLogger(cfg Config) (*Logger, error) {
	var cores []zapcore.Core

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, fmt.Errorf("logging: create log dir: %w", err)
		}
		logPath := filepath.Join(cfg.LogDir, fmt.Sprintf("run-%s.jsonl", time.Now().UTC().Format("20060102T150405Z")))
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("logging: open log file: %w", err)
		}
		jsonEncoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		cores = append(cores, zapcore.NewCore(jsonEncoder, zapcore.AddSync(f), cfg.FileLevel))
	}

	if cfg.ConsoleEnabled {
		consoleCfg := zap.NewDevelopmentEncoderConfig()
		consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		consoleEncoder := zapcore.NewConsoleEncoder(consoleCfg)
		cores = append(cores, zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stderr), cfg.ConsoleLevel))
	}

	var core zapcore.Core
	switch len(cores) {
	case 0:
		core = zapcore.NewNopCore()
	case 1:
		core = cores[0]
	default:
		core = zapcore.NewTee(cores...)
	}

	opts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}

	return &Logger{zap: zap.New(core, opts...)}, nil
}

// Nop returns a Logger that discards everything, for tests and callers that
// did not configure logging.
func Nop() *Logger {
	return &Logger{zap: zap.NewNop()}
}

// WithRunID tags every subsequent log line with a run correlation ID so
// interleaved Phase A/Phase B output can be pulled apart after the fact.
func (l *Logger) WithRunID(runID string) *Logger {
	return &Logger{zap: l.zap.With(zap.String("run_id", runID))}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.zap.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...Field)   { l.zap.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...Field)   { l.zap.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...Field)  { l.zap.Error(msg, fields...) }
func (l *Logger) Fatal(msg string, fields ...Field)  { l.zap.Fatal(msg, fields...) }

func (l *Logger) With(fields ...Field) *Logger {
	return &Logger{zap: l.zap.With(fields...)}
}

func (l *Logger) Named(name string) *Logger {
	return &Logger{zap: l.zap.Named(name)}
}

// Sync flushes buffered log entries; callers defer it after NewLogger.
func (l *Logger) Sync() error {
	return l.zap.Sync()
}
