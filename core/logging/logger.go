// Package logging provides structured operational logging for the
// execution core, independent from the per-invocation recorder.
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type contextKey string

const invocationIDKey contextKey = "invocation_id"

// Logger wraps logrus.Logger with invocation-aware context helpers.
type Logger struct {
	*logrus.Logger
	component string
}

// New builds a Logger for the named component ("dispatcher", "resolver", ...).
func New(component, level, format string) *Logger {
	l := logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	if format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}
	l.SetOutput(os.Stdout)

	return &Logger{Logger: l, component: component}
}

// NewFromEnv builds a Logger from LOG_LEVEL / LOG_FORMAT, defaulting to
// info/json when unset.
func NewFromEnv(component string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(component, level, format)
}

// WithInvocation attaches an invocation id to ctx for later retrieval.
func WithInvocation(ctx context.Context, invocationID string) context.Context {
	return context.WithValue(ctx, invocationIDKey, invocationID)
}

// InvocationID reads the invocation id previously attached to ctx, if any.
func InvocationID(ctx context.Context) string {
	if v, ok := ctx.Value(invocationIDKey).(string); ok {
		return v
	}
	return ""
}

// NewInvocationID mints a fresh invocation identifier.
func NewInvocationID() string {
	return uuid.New().String()
}

// WithContext returns a logrus entry tagged with component and, if present,
// the invocation id carried by ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("component", l.component)
	if id := InvocationID(ctx); id != "" {
		entry = entry.WithField("invocation_id", id)
	}
	return entry
}

// WithFields returns a logrus entry tagged with component and fields.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	if fields == nil {
		fields = logrus.Fields{}
	}
	fields["component"] = l.component
	return l.Logger.WithFields(fields)
}
