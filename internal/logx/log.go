package logx

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log is the process logger used by the command entry point. Library
// packages never reach for it; they take a Logger instead.
var Log = log.Logger

// Configure sets the global log level and output format.
// The level string is tolerant of case and common synonyms.
func Configure(level string) {
	zerolog.SetGlobalLevel(parseLevel(level))

	// Optional: make logs human-readable in dev
	Log = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// parseLevel converts a string to a zerolog level.
// Accepts: all, debug, info, warn, warning, error, fatal, none.
// Unknown values default to info.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "all", "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "none", "off", "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Logger is the logging capability handed to the serving components.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

type zlogger struct {
	l zerolog.Logger
}

// Hooks adapts a zerolog logger to Logger.
func Hooks(l zerolog.Logger) Logger { return zlogger{l: l} }

func (z zlogger) Debugf(format string, args ...any) { z.l.Debug().Msgf(format, args...) }
func (z zlogger) Infof(format string, args ...any)  { z.l.Info().Msgf(format, args...) }
func (z zlogger) Errorf(format string, args ...any) { z.l.Error().Msgf(format, args...) }

// Component returns a Logger that tags every entry with component=name.
func Component(l zerolog.Logger, name string) Logger {
	return Hooks(l.With().Str("component", name).Logger())
}

// Funcs builds a Logger out of three plain callables. Nil entries discard.
type Funcs struct {
	Debug func(string, ...any)
	Info  func(string, ...any)
	Error func(string, ...any)
}

func (f Funcs) Debugf(format string, args ...any) {
	if f.Debug != nil {
		f.Debug(format, args...)
	}
}

func (f Funcs) Infof(format string, args ...any) {
	if f.Info != nil {
		f.Info(format, args...)
	}
}

func (f Funcs) Errorf(format string, args ...any) {
	if f.Error != nil {
		f.Error(format, args...)
	}
}

// Nop returns a Logger that discards everything.
func Nop() Logger { return Funcs{} }

// Writer returns a Logger that prints one line per entry to w, prefixed with
// the level. Mostly useful in tests.
func Writer(w io.Writer) Logger {
	line := func(level string) func(string, ...any) {
		return func(format string, args ...any) {
			_, _ = fmt.Fprintf(w, level+" "+format+"\n", args...)
		}
	}
	return Funcs{Debug: line("DBG"), Info: line("INF"), Error: line("ERR")}
}
