package log

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Formatter renders one entry as display text.
type Formatter interface {
	Format(w io.Writer, entry Entry) error
}

// FormatterFunc adapts a function to Formatter.
type FormatterFunc func(w io.Writer, entry Entry) error

// Format calls f(w, entry).
func (f FormatterFunc) Format(w io.Writer, entry Entry) error {
	return f(w, entry)
}

// DefaultTimeLayout is the timestamp layout used by TextFormatter.
const DefaultTimeLayout = "2006-01-02 15:04:05.000 -07:00"

// TextFormatter renders
//
//	<timestamp> [<LEVEL>] <message> key=value ...
//
// with fields sorted by key. An error stored under ErrorKey is written on
// its own line after the message, so it reaches line-oriented collectors as
// part of the same record.
type TextFormatter struct {
	// TimeLayout defaults to DefaultTimeLayout.
	TimeLayout string
	// UTC converts timestamps to UTC before formatting.
	UTC bool
}

// Format implements Formatter.
func (f TextFormatter) Format(w io.Writer, entry Entry) error {
	layout := f.TimeLayout
	if layout == "" {
		layout = DefaultTimeLayout
	}
	ts := entry.Timestamp
	if f.UTC {
		ts = ts.UTC()
	}

	var b strings.Builder
	b.WriteString(ts.Format(layout))
	b.WriteString(" [")
	b.WriteString(entry.Level.String())
	b.WriteString("] ")
	b.WriteString(entry.Message)

	if entry.RequestID != "" {
		b.WriteString(" request_id=")
		b.WriteString(quoteIfNeeded(entry.RequestID))
	}

	keys := make([]string, 0, len(entry.Fields))
	for k := range entry.Fields {
		if k == ErrorKey {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(formatValue(entry.Fields[k]))
	}

	if v, ok := entry.Fields[ErrorKey]; ok && v != nil {
		b.WriteByte('\n')
		if err, isErr := v.(error); isErr {
			b.WriteString(err.Error())
		} else {
			fmt.Fprint(&b, v)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// JSONFormatter renders entries with Entry.MarshalJSON.
type JSONFormatter struct{}

// Format implements Formatter.
func (JSONFormatter) Format(w io.Writer, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return quoteIfNeeded(val)
	case error:
		return quoteIfNeeded(val.Error())
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return quoteIfNeeded(val.String())
	default:
		return quoteIfNeeded(fmt.Sprint(val))
	}
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\r\n\"=") {
		return strconv.Quote(s)
	}
	return s
}
