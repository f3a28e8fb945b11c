package ledgercache

// Fields is a minimal structured field map for logs.
type Fields map[string]any

// Logger is the leveled logger used by the cache and the counter invoker.
// Adapters for zap, logrus and slog live under log/. Nil in Options disables logging.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

type NopLogger struct{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}

func entryFields(e *entry) Fields {
	return Fields{"key": e.key, "address": e.addr.Key.String(), "status": e.status.String()}
}
