// Package logging provides the structured Logger interface used throughout
// the engine, backed by zerolog.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the minimal structured logging surface every engine component
// depends on. Call sites pass alternating key/value pairs:
// log.Debug("msg", "key", value, ...).
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
	With(kv ...any) Logger
}

type zlogger struct {
	z zerolog.Logger
}

// New returns a Logger writing structured JSON to w at the given level.
// level accepts zerolog level names ("debug", "info", "warn", "error");
// unknown values default to "info".
func New(w io.Writer, level string) Logger {
	if w == nil {
		w = os.Stderr
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	z := zerolog.New(w).With().Timestamp().Logger().Level(lvl)
	return &zlogger{z: z}
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return &zlogger{z: zerolog.Nop()}
}

func (l *zlogger) event(e *zerolog.Event, msg string, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, kv[i+1])
	}
	e.Msg(msg)
}

func (l *zlogger) Debug(msg string, kv ...any) { l.event(l.z.Debug(), msg, kv) }
func (l *zlogger) Info(msg string, kv ...any)  { l.event(l.z.Info(), msg, kv) }
func (l *zlogger) Warn(msg string, kv ...any)  { l.event(l.z.Warn(), msg, kv) }
func (l *zlogger) Error(msg string, kv ...any) { l.event(l.z.Error(), msg, kv) }

func (l *zlogger) With(kv ...any) Logger {
	ctx := l.z.With()
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		ctx = ctx.Interface(key, kv[i+1])
	}
	return &zlogger{z: ctx.Logger()}
}
