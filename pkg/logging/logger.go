// Package logging builds the process logger: a console sink plus a dated run log file.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	fileDateLayout = "2006-01-02"
	fileMaxSizeMB  = 50
	fileMaxBackups = 12
	fileMaxAgeDays = 400
)

// Config configures the process logger
type Config struct {
	// Level is the console level (debug, info, warn, error)
	Level string
	// Pretty selects zap's console encoder for stdout instead of JSON
	Pretty bool
	// Dir is where dated run logs are written. Empty disables the file sink.
	Dir string
}

// Logger is an ectologger backed by zap, with a Sync hook for shutdown
type Logger struct {
	ectologger.Logger
	zap *zap.Logger
}

// Sync flushes buffered log entries
func (l *Logger) Sync() {
	_ = l.zap.Sync()
}

// New builds the logger. The run log file is named after the date of now, e.g. logs/2024-07-01.txt,
// and always records INFO and above.
func New(cfg Config, now time.Time) (*Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	consoleEncoder := zapcore.NewJSONEncoder(encoderConfig())
	if cfg.Pretty {
		devConfig := zap.NewDevelopmentEncoderConfig()
		devConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		consoleEncoder = zapcore.NewConsoleEncoder(devConfig)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), level),
	}

	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory %s: %w", cfg.Dir, err)
		}
		file := &lumberjack.Logger{
			Filename:   FileName(cfg.Dir, now),
			MaxSize:    fileMaxSizeMB,
			MaxBackups: fileMaxBackups,
			MaxAge:     fileMaxAgeDays,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.AddSync(file), zapcore.InfoLevel))
	}

	zl := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	return &Logger{
		Logger: zapadapter.NewZapEctoLogger(zl, nil),
		zap:    zl,
	}, nil
}

// FileName returns the run log path for the given day
func FileName(dir string, now time.Time) string {
	return filepath.Join(dir, now.Format(fileDateLayout)+".txt")
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg
}

func parseLevel(level string) (zapcore.Level, error) {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "" {
		return zapcore.DebugLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return l, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return l, nil
}
