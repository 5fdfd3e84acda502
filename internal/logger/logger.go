// Package logger provides the process-wide structured logger.
//
// Production environments get JSON output, development gets the console
// encoder. LOG_LEVEL and LOG_FORMAT override both defaults.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls logger construction.
type Config struct {
	Level       string // debug, info, warn, error
	Format      string // json, text
	Environment string // development, production, staging, test
}

var (
	mu      sync.RWMutex
	current = zap.NewNop()
)

// ParseLevel converts a level name to a zap level. Unknown names map to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// useJSON reports whether the JSON encoder should be used. An explicit
// format wins; otherwise production and staging log JSON.
func useJSON(cfg Config) bool {
	switch strings.ToLower(cfg.Format) {
	case "json":
		return true
	case "text", "console":
		return false
	}
	return cfg.Environment == "production" || cfg.Environment == "staging"
}

// Init builds the global logger writing to stdout.
func Init(cfg Config) error {
	return InitWithWriter(os.Stdout, cfg)
}

// InitWithWriter builds the global logger writing to w. Tests use it to
// capture output.
func InitWithWriter(w io.Writer, cfg Config) error {
	l := New(w, cfg)
	mu.Lock()
	old := current
	current = l
	mu.Unlock()
	_ = old.Sync()
	return nil
}

// New builds a standalone logger without touching the global one.
func New(w io.Writer, cfg Config) *zap.Logger {
	var encCfg zapcore.EncoderConfig
	if cfg.Environment == "production" || cfg.Environment == "staging" {
		encCfg = zap.NewProductionEncoderConfig()
	} else {
		encCfg = zap.NewDevelopmentEncoderConfig()
	}
	encCfg.TimeKey = "time"
	encCfg.MessageKey = "msg"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if useJSON(cfg) {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(w), zap.NewAtomicLevelAt(ParseLevel(cfg.Level)))
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel))
}

// L returns the global logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Sync flushes buffered log entries.
func Sync() {
	_ = L().Sync()
}

func Debug(msg string, fields ...zap.Field) { L().Debug(msg, fields...) }

func Info(msg string, fields ...zap.Field) { L().Info(msg, fields...) }

func Warn(msg string, fields ...zap.Field) { L().Warn(msg, fields...) }

// Error logs msg at error level with err attached.
func Error(msg string, err error, fields ...zap.Field) {
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	L().Error(msg, fields...)
}
