package core

import (
	"log/slog"
	"os"
)

// Logger provides component-scoped logging for lmswatch
type Logger struct {
	*slog.Logger
	components map[string]*slog.Logger
}

// NewLogger creates a new logger instance
func NewLogger() *Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})

	return &Logger{
		Logger:     slog.New(handler),
		components: make(map[string]*slog.Logger),
	}
}

// ForComponent returns a logger specific to a component
func (l *Logger) ForComponent(name string) *Logger {
	if componentLogger, exists := l.components[name]; exists {
		return &Logger{
			Logger:     componentLogger,
			components: l.components,
		}
	}

	componentLogger := l.Logger.With("component", name)
	l.components[name] = componentLogger

	return &Logger{
		Logger:     componentLogger,
		components: l.components,
	}
}

// WithSubscriber returns a logger with subscriber context
func (l *Logger) WithSubscriber(subscriberID string) *Logger {
	return &Logger{
		Logger:     l.Logger.With("subscriber_id", subscriberID),
		components: l.components,
	}
}
