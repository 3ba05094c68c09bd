// Package log builds the zap loggers used by the node.
package log

import (
	"fmt"
	"io"
	"os"
	"slices"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Encoder defines a log encoder kind.
type Encoder = string

const (
	// ConsoleEncoder represents logging with plain text.
	ConsoleEncoder Encoder = "console"
	// JSONEncoder represents logging with JSON.
	JSONEncoder Encoder = "json"

	defaultLevel = zapcore.InfoLevel
)

// Config holds the encoder and the logging level of the node and its modules.
type Config struct {
	Encoder Encoder `mapstructure:"log-encoder"`
	Level   string  `mapstructure:"level"`
	// Modules overrides the level of named module loggers, e.g. {"sync": "debug"}.
	Modules map[string]string `mapstructure:"modules"`
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() Config {
	return Config{
		Encoder: ConsoleEncoder,
		Level:   defaultLevel.String(),
	}
}

// Logger is the root node logger. Module loggers derived with Module honor
// the per-module levels from the config.
type Logger struct {
	*zap.Logger

	// base is enabled for the lowest configured level.
	base    *zap.Logger
	lowest  zapcore.Level
	level   zapcore.Level
	modules map[string]zapcore.Level
}

// New creates a root logger writing to stdout.
func New(cfg Config) (*Logger, error) {
	return NewWithWriter(cfg, os.Stdout)
}

// NewWithWriter creates a root logger writing to w.
func NewWithWriter(cfg Config, w io.Writer) (*Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	modules := make(map[string]zapcore.Level, len(cfg.Modules))
	lowest := level
	for name, lvl := range cfg.Modules {
		parsed, err := zapcore.ParseLevel(lvl)
		if err != nil {
			return nil, fmt.Errorf("parse log level of %q: %w", name, err)
		}
		modules[name] = parsed
		lowest = min(lowest, parsed)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	switch cfg.Encoder {
	case JSONEncoder:
		enc = zapcore.NewJSONEncoder(encoderCfg)
	case ConsoleEncoder, "":
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encoderCfg)
	default:
		return nil, fmt.Errorf("unknown log encoder %q", cfg.Encoder)
	}

	base := zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), zap.NewAtomicLevelAt(lowest)))
	return &Logger{
		Logger:  withLevel(base, lowest, level),
		base:    base,
		lowest:  lowest,
		level:   level,
		modules: modules,
	}, nil
}

// Module returns the named logger of a module, at the module level when one
// is configured and at the root level otherwise.
func (l *Logger) Module(name string) *zap.Logger {
	lvl, ok := l.modules[name]
	if !ok {
		lvl = l.level
	}
	return withLevel(l.base, l.lowest, lvl).Named(name)
}

// Modules returns the sorted names of modules with a configured level.
func (l *Logger) Modules() []string {
	names := make([]string, 0, len(l.modules))
	for name := range l.modules {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// zap.IncreaseLevel reports an error when asked to lower the level.
func withLevel(logger *zap.Logger, current, lvl zapcore.Level) *zap.Logger {
	if lvl <= current {
		return logger
	}
	return logger.WithOptions(zap.IncreaseLevel(lvl))
}
