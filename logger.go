package tiered

// Fields are the structured attributes of one log line.
type Fields map[string]any

// Logger receives the DB's diagnostics. Adapters live under log/ (zap,
// logrus, log/slog). A nil Options.Logger discards everything.
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

// rowFields tags a message about one row. kv holds extra name/value pairs;
// a non-string name is skipped together with its value.
func rowFields(m *Model, id string, kv ...any) Fields {
	f := make(Fields, 2+len(kv)/2)
	f["model"] = m.name
	f["id"] = id
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			f[k] = kv[i+1]
		}
	}
	return f
}
