package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ParseLevel accepts "debug", "info", "warn" and "error" in any case.
// Anything else falls back to info.
func ParseLevel(s string) zap.AtomicLevel {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if s == "" {
		return level
	}
	if err := level.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	return level
}

// Cores builds a human-readable console core on console and, when logPath is
// set, a rotated JSON file core. Either may be omitted.
func Cores(logPath string, level zap.AtomicLevel, console zapcore.WriteSyncer) []zapcore.Core {
	var cores []zapcore.Core
	if console != nil {
		consoleConfig := zap.NewDevelopmentEncoderConfig()
		consoleConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		consoleConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleConfig),
			zapcore.Lock(console),
			level,
		))
	}
	if logPath != "" {
		jsonConfig := zap.NewProductionEncoderConfig()
		jsonConfig.TimeKey = "timestamp"
		jsonConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(jsonConfig),
			zapcore.AddSync(&lumberjack.Logger{
				Filename:   logPath,
				MaxSize:    100, // MB
				MaxBackups: 5,
			}),
			level,
		))
	}
	return cores
}

// NewLogger creates the logger used when telemetry is off.
// With neither a console nor a log path it returns a no-op logger.
func NewLogger(logPath, logLevel string, console zapcore.WriteSyncer) (*zap.SugaredLogger, func() error) {
	cores := Cores(logPath, ParseLevel(logLevel), console)
	if len(cores) == 0 {
		return zap.NewNop().Sugar(), func() error { return nil }
	}
	l := zap.New(zapcore.NewTee(cores...))
	return l.Sugar(), l.Sync
}
