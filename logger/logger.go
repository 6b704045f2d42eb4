package logger

// Logger is the minimal structured logging interface used by the
// decision engine. Implementations accept alternating key/value pairs
// as variadic arguments, which keeps the interface easy to mock.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}
