package transporters

import (
	"bytes"
	"io"
	"os"
	"sync"

	"logentries-sink/pkg/log"
)

// Stdout writes one formatted entry per line to stdout (or any io.Writer).
// It is also used as the sink's diagnostics output on stderr.
type Stdout struct {
	mu        sync.Mutex
	writer    io.Writer
	formatter log.Formatter
}

// NewStdout creates a new stdout transporter that writes JSON to os.Stdout.
func NewStdout() *Stdout {
	return &Stdout{writer: os.Stdout, formatter: log.JSONFormatter{}}
}

// NewStdoutWithWriter creates a JSON transporter with a custom writer.
// Useful for testing.
func NewStdoutWithWriter(w io.Writer) *Stdout {
	return &Stdout{writer: w, formatter: log.JSONFormatter{}}
}

// NewStdoutWithFormatter creates a transporter writing entries rendered by f.
func NewStdoutWithFormatter(w io.Writer, f log.Formatter) *Stdout {
	return &Stdout{writer: w, formatter: f}
}

// Name returns the transporter identifier.
func (s *Stdout) Name() string {
	return "stdout"
}

// Write formats the entry and writes it followed by a newline.
func (s *Stdout) Write(entry log.Entry) error {
	var buf bytes.Buffer
	if err := s.formatter.Format(&buf, entry); err != nil {
		return err
	}
	buf.WriteByte('\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.writer.Write(buf.Bytes())
	return err
}

// Close is a no-op for stdout.
func (s *Stdout) Close() error {
	return nil
}
