package log

import (
	"encoding/json"
	"time"
)

// ErrorKey is the field under which WithError stores an error. Formatters
// render it after the message, the way an exception trails a log line.
const ErrorKey = "error"

// Entry represents a structured log entry.
type Entry struct {
	Timestamp time.Time
	Level     Level
	Caller    string
	RequestID string
	Message   string
	Fields    map[string]any
}

// NewEntry creates a new log entry with the current timestamp.
func NewEntry(level Level, msg string) *Entry {
	return &Entry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   msg,
		Fields:    make(map[string]any),
	}
}

// With adds key-value pairs to the entry's fields.
// If an odd number of arguments is provided, the last key is ignored.
func (e *Entry) With(keysAndValues ...any) *Entry {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	mergeFields(e.Fields, keysAndValues)
	return e
}

// WithError attaches err under ErrorKey. A nil error is ignored.
func (e *Entry) WithError(err error) *Entry {
	if err == nil {
		return e
	}
	return e.With(ErrorKey, err)
}

// MarshalJSON flattens fields into the root object and omits an empty
// caller or request_id. Error values are written as their message.
func (e Entry) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(e.Fields)+5)

	m["timestamp"] = e.Timestamp.UTC().Format(time.RFC3339)
	m["level"] = e.Level.String()
	m["msg"] = e.Message

	if e.Caller != "" {
		m["caller"] = e.Caller
	}
	if e.RequestID != "" {
		m["request_id"] = e.RequestID
	}

	for k, v := range e.Fields {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		m[k] = v
	}

	return json.Marshal(m)
}

// mergeFields copies alternating key/value pairs into dst, skipping
// non-string keys and a trailing orphan key.
func mergeFields(dst map[string]any, keysAndValues []any) {
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			dst[key] = keysAndValues[i+1]
		}
	}
}
