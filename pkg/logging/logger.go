//go:generate mockgen -package=mocks -destination=../../mocks/mock_logger.go github.com/gocircum/nordconnect/pkg/logging Logger

package logging

// Logger defines a common interface for logging.
// Every component takes one so tests can swap in a silent or mocked logger.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	With(keysAndValues ...interface{}) Logger
}

// OrDefault returns l, or the global logger when l is nil.
func OrDefault(l Logger) Logger {
	if l == nil {
		return GetLogger()
	}
	return l
}

// ForComponent returns a child of l (or of the global logger) tagged with the component name.
func ForComponent(l Logger, name string) Logger {
	return OrDefault(l).With("component", name)
}
