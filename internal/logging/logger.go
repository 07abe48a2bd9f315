// Package logging provides the structured logger used across every
// component of the streaming control plane: a thin wrapper over logrus
// that carries a component tag and an optional correlation id through
// WithField-style chaining, with JSON output in production and a rotating
// file sink via lumberjack.
package logging

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Fields is an alias for logrus.Fields so callers don't need to import
// logrus directly.
type Fields = logrus.Fields

type correlationIDKey struct{}

// Config controls level, format, and file rotation for SetupLogging.
type Config struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // "json" | "text"
	FilePath   string `mapstructure:"file_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

var (
	root     *logrus.Logger
	setup    sync.Once
	setupErr error
)

// SetupLogging configures the package-wide root logrus.Logger. It is safe
// to call more than once; only the first call takes effect, matching the
// teacher's single-init logging setup.
func SetupLogging(cfg Config) error {
	setup.Do(func() {
		l := logrus.New()
		level, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			level = logrus.InfoLevel
		}
		l.SetLevel(level)

		if cfg.Format == "json" {
			l.SetFormatter(&logrus.JSONFormatter{})
		} else {
			l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		}

		var out io.Writer = os.Stdout
		if cfg.FilePath != "" {
			fileSink := &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSizeMB,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAgeDays,
				Compress:   cfg.Compress,
			}
			out = io.MultiWriter(os.Stdout, fileSink)
		}
		l.SetOutput(out)
		root = l
	})
	return setupErr
}

func rootLogger() *logrus.Logger {
	if root == nil {
		l := logrus.New()
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		root = l
	}
	return root
}

// Logger is a component-scoped, chainable structured logger.
type Logger struct {
	entry *logrus.Entry
}

// New returns a Logger tagged with the given component name, e.g.
// "process.supervisor" or "timeline.executor".
func New(component string) *Logger {
	return &Logger{entry: rootLogger().WithField("component", component)}
}

// WithField returns a derived Logger with one additional field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// WithFields returns a derived Logger with several additional fields.
func (l *Logger) WithFields(fields Fields) *Logger {
	return &Logger{entry: l.entry.WithFields(fields)}
}

// WithError returns a derived Logger carrying the given error.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{entry: l.entry.WithError(err)}
}

// WithCorrelationID returns a derived Logger tagged with the given
// correlation id.
func (l *Logger) WithCorrelationID(id string) *Logger {
	return &Logger{entry: l.entry.WithField("correlation_id", id)}
}

// WithContext returns a derived Logger tagged with the correlation id found
// on ctx, if any.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if id := CorrelationIDFromContext(ctx); id != "" {
		return l.WithCorrelationID(id)
	}
	return l
}

func (l *Logger) Debug(args ...interface{}) { l.entry.Debug(args...) }
func (l *Logger) Info(args ...interface{})  { l.entry.Info(args...) }
func (l *Logger) Warn(args ...interface{})  { l.entry.Warn(args...) }
func (l *Logger) Error(args ...interface{}) { l.entry.Error(args...) }

func (l *Logger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

// GenerateCorrelationID returns a fresh correlation id suitable for tagging
// one end-to-end operation (one execution run, one watchdog recovery cycle).
func GenerateCorrelationID() string {
	return uuid.New().String()
}

// WithCorrelationIDContext returns a derived context carrying id, retrievable
// with CorrelationIDFromContext.
func WithCorrelationIDContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// CorrelationIDFromContext returns the correlation id on ctx, or "" if none
// was set.
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey{}).(string)
	return id
}
