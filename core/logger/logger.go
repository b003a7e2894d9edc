// Package logger defines the logging surface used by the core packages.
package logger

// Logger is the leveled logger handed to supervisors, the session tracker and
// the reconciler.
type Logger interface {
	Debugf(format string, args ...any)
	// Debugw logs a message with structured fields.
	Debugw(msg string, fields map[string]any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	// With returns a child logger that adds key=value to every line.
	With(key string, value any) Logger
}
