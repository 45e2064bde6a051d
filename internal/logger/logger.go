package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/wastetrack/wastetrack/internal/model"
)

// Logger wraps zerolog.Logger with application-specific methods
type Logger struct {
	zerolog.Logger
}

// New creates a new Logger writing to stdout
func New(level string, format string) *Logger {
	return NewWithWriter(os.Stdout, level, format)
}

// NewWithWriter creates a Logger writing to w
func NewWithWriter(w io.Writer, level string, format string) *Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	if format == "text" || format == "console" {
		w = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
		}
	}

	return &Logger{Logger: zerolog.New(w).Level(lvl).With().Timestamp().Caller().Logger()}
}

// Nop returns a Logger that discards everything
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}

// WithRequestID returns a new logger with the request ID attached
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{
		Logger: l.With().Str("request_id", requestID).Logger(),
	}
}

// WithAccountID returns a new logger with the account ID attached
func (l *Logger) WithAccountID(accountID string) *Logger {
	return &Logger{
		Logger: l.With().Str("account_id", accountID).Logger(),
	}
}

// WithComponent returns a new logger with the component name attached
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.With().Str("component", component).Logger(),
	}
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, statusCode int, duration time.Duration, clientIP string) {
	l.Info().
		Str("method", method).
		Str("path", path).
		Int("status", statusCode).
		Dur("duration", duration).
		Str("client_ip", clientIP).
		Msg("HTTP request")
}

// AuditFallback writes an audit record that could not be persisted. This is
// the last channel an audit entry can reach, so the whole record is kept.
func (l *Logger) AuditFallback(rec *model.AuditRecord, cause error) {
	event := l.Warn().
		Bool("audit_fallback", true).
		Str("audit_id", rec.ID).
		Str("action", string(rec.Action)).
		Str("status", string(rec.Status)).
		Str("ip", rec.IP).
		Str("device", rec.Device).
		Time("server_timestamp", rec.ServerTimestamp)

	if rec.ActorAccountID != nil {
		event.Str("actor_account_id", *rec.ActorAccountID)
	}
	if rec.InitiatorAccountID != nil {
		event.Str("initiator_account_id", *rec.InitiatorAccountID)
	}
	if rec.Method != "" {
		event.Str("method", string(rec.Method))
	}
	if len(rec.Metadata) > 0 {
		event.Interface("metadata", rec.Metadata)
	}
	if cause != nil {
		event.Err(cause)
	}

	event.Msg("audit record not persisted")
}
