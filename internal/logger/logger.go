package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logs go to stderr. Stdout is reserved for the rendered results so they can
// be piped into other tools.
const output = "stderr"

// New builds the CLI logger. Callers own the returned logger and should Sync it
// before exit.
func New(json bool, debug bool) (*zap.Logger, error) {
	return config(json, debug).Build()
}

func config(json bool, debug bool) zap.Config {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	encoding := "console"
	encodeLevel := zapcore.CapitalColorLevelEncoder
	if json {
		encoding = "json"
		encodeLevel = zapcore.LowercaseLevelEncoder
	}

	encoder := zapcore.EncoderConfig{
		MessageKey:  "step",
		LevelKey:    "level",
		EncodeLevel: encodeLevel,
	}

	// Timestamps and callers only add noise to an interactive session.
	if json || debug {
		encoder.TimeKey = "time"
		encoder.EncodeTime = zapcore.RFC3339TimeEncoder
		encoder.CallerKey = "caller"
		encoder.EncodeCaller = zapcore.ShortCallerEncoder
	}

	return zap.Config{
		Encoding:          encoding,
		Level:             zap.NewAtomicLevelAt(level),
		OutputPaths:       []string{output},
		ErrorOutputPaths:  []string{output},
		DisableStacktrace: !debug,
		EncoderConfig:     encoder,
	}
}

// TruncateForLog trims s and cuts it to limit runes, appending an ellipsis when cut.
func TruncateForLog(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
