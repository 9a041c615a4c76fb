package types

// Logger defines methods for structured logging.
//
// Compatible with zap.SugaredLogger and other structured loggers. All methods
// accept alternating key-value pairs; fabric logs task, partition and member
// identifiers under the keys "task", "partition" and "member".
type Logger interface {
	// Debug logs a message at DebugLevel.
	Debug(msg string, keysAndValues ...any)

	// Info logs a message at InfoLevel.
	Info(msg string, keysAndValues ...any)

	// Warn logs a message at WarnLevel.
	Warn(msg string, keysAndValues ...any)

	// Error logs a message at ErrorLevel.
	Error(msg string, keysAndValues ...any)

	// Fatal logs a message at FatalLevel and calls os.Exit(1).
	//
	// fabric itself never calls Fatal; it is part of the interface so existing
	// structured loggers can be plugged in unchanged.
	Fatal(msg string, keysAndValues ...any)
}
