// Package logging wraps zerolog with the fields every component attaches.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger.
type Logger struct {
	zerolog.Logger
}

// New creates a logger for the named service. Development environments get a
// human-readable console writer; everything else emits JSON.
func New(serviceName, environment string) *Logger {
	var output io.Writer = os.Stdout
	if environment == "development" {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	logger := zerolog.New(output).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()
	return &Logger{Logger: logger}
}

// WithComponent returns a logger with the component name attached.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.Logger.With().Str("component", component).Logger()}
}

// WithRecordID returns a logger with the project record ID attached.
func (l *Logger) WithRecordID(recordID string) *Logger {
	return &Logger{Logger: l.Logger.With().Str("record_id", recordID).Logger()}
}

// Nop returns a logger that discards everything; used by tests.
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}
