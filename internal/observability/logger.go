// Package observability builds the process logger.
package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a timestamped logger writing JSON, or human-readable lines
// when format is "console". Unknown levels fall back to info.
func New(level, format string, w io.Writer) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}

	out := w
	if strings.EqualFold(format, "console") {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	return zerolog.New(out).Level(parsed).With().Timestamp().Str("app", "leo").Logger()
}

// WailsLogger forwards the Wails runtime log to zerolog.
type WailsLogger struct {
	log  zerolog.Logger
	exit func(code int)
}

func NewWailsLogger(log zerolog.Logger) *WailsLogger {
	return &WailsLogger{log: log.With().Str("component", "wails").Logger(), exit: os.Exit}
}

func (l *WailsLogger) Print(message string)   { l.log.Log().Msg(message) }
func (l *WailsLogger) Trace(message string)   { l.log.Trace().Msg(message) }
func (l *WailsLogger) Debug(message string)   { l.log.Debug().Msg(message) }
func (l *WailsLogger) Info(message string)    { l.log.Info().Msg(message) }
func (l *WailsLogger) Warning(message string) { l.log.Warn().Msg(message) }
func (l *WailsLogger) Error(message string)   { l.log.Error().Msg(message) }

// Fatal logs at fatal level and exits with status 1, like the Wails default
// logger.
func (l *WailsLogger) Fatal(message string) {
	l.log.WithLevel(zerolog.FatalLevel).Msg(message)
	l.exit(1)
}
