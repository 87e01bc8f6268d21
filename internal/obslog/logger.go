// Package obslog provides the structured logger used at control-plane and
// health-transition boundaries. Hot-path code never logs; this wrapper
// exists for the orchestrator, the
// registries' health supervisor, and the bus/scheduler lifecycle
// transitions.
//
// Modeled on jhkimqd-chaos-utils/pkg/reporting/logger.go: a thin struct over
// zerolog.Logger, configured once at construction.
package obslog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Level is the logging verbosity.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format selects the output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config configures a Logger.
type Config struct {
	Level  Level
	Format Format
	Output io.Writer
}

// Logger is a structured logger wrapping zerolog.
type Logger struct {
	z zerolog.Logger
}

// New builds a Logger from cfg, defaulting to stdout/JSON/info.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	var out io.Writer = cfg.Output
	if cfg.Format == FormatText {
		out = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: time.RFC3339}
	}
	z := zerolog.New(out).With().Timestamp().Logger()
	switch cfg.Level {
	case LevelDebug:
		z = z.Level(zerolog.DebugLevel)
	case LevelWarn:
		z = z.Level(zerolog.WarnLevel)
	case LevelError:
		z = z.Level(zerolog.ErrorLevel)
	default:
		z = z.Level(zerolog.InfoLevel)
	}
	return &Logger{z: z}
}

// Nop returns a Logger that discards everything, for tests and for
// components constructed without an explicit logger.
func Nop() *Logger {
	return &Logger{z: zerolog.Nop()}
}

// With returns a child Logger with the given component name attached, the
// same way the orchestrator tags each subsystem's log lines.
func (l *Logger) With(component string) *Logger {
	return &Logger{z: l.z.With().Str("component", component).Logger()}
}

func (l *Logger) Debug(msg string, fields map[string]any) { l.log(l.z.Debug(), msg, fields) }
func (l *Logger) Info(msg string, fields map[string]any)  { l.log(l.z.Info(), msg, fields) }
func (l *Logger) Warn(msg string, fields map[string]any)  { l.log(l.z.Warn(), msg, fields) }

func (l *Logger) Error(msg string, err error, fields map[string]any) {
	ev := l.z.Error()
	if err != nil {
		ev = ev.Err(err)
	}
	l.log(ev, msg, fields)
}

func (l *Logger) log(ev *zerolog.Event, msg string, fields map[string]any) {
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}
