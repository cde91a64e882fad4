// Package logentries ships log entries to a Logentries collector over a
// persistent TCP connection, optionally secured with TLS.
//
// Sink plugs into pkg/log as a batch transporter:
//
//	logger, err := logentries.NewLogger(cfg)
//	if err != nil {
//		return err
//	}
//	defer logger.Close()
//
// The logger's buffer batches entries and retries failed batches; the sink
// formats them, and the Emitter and ConnectionManager deliver each batch
// over one connection.
package logentries

import (
	"bytes"
	"context"
	"crypto/tls"
	"os"
	"sync"

	"logentries-sink/internal/metrics"
	"logentries-sink/pkg/log"
	"logentries-sink/pkg/log/transporters"
)

// Option customises a Sink.
type Option func(*options)

type options struct {
	formatter   log.Formatter
	tlsConfig   *tls.Config
	diagnostics *log.Logger
}

// WithFormatter sets how entries are rendered. The default is
// log.TextFormatter. A nil formatter is a configuration error.
func WithFormatter(f log.Formatter) Option {
	return func(o *options) { o.formatter = f }
}

// WithTLSConfig sets the base TLS configuration, for example custom root
// CAs. It is cloned for every connection.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(o *options) { o.tlsConfig = cfg }
}

// WithDiagnostics sets the logger that receives the sink's own connection
// and write failures. It must not deliver to the sink itself.
func WithDiagnostics(l *log.Logger) Option {
	return func(o *options) { o.diagnostics = l }
}

func buildOptions(opts []Option) options {
	o := options{formatter: log.TextFormatter{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.diagnostics == nil {
		o.diagnostics = diagnostics()
	}
	return o
}

var (
	diagOnce   sync.Once
	diagLogger *log.Logger
)

// diagnostics returns the shared stderr logger used when no diagnostics
// logger is configured.
func diagnostics() *log.Logger {
	diagOnce.Do(func() {
		diagLogger = log.New(log.Warn, transporters.NewStdoutWithWriter(os.Stderr)).
			With("component", "logentries")
	})
	return diagLogger
}

// Sink is a log.BatchTransporter that sends entries to Logentries. The
// connection is opened on the first batch.
type Sink struct {
	cfg      Config
	endpoint Endpoint
	opts     options
	emitter  *Emitter
	buf      bytes.Buffer
	records  []Record
}

var _ log.BatchTransporter = (*Sink)(nil)

// New validates cfg and returns a sink. No connection is made yet.
func New(cfg Config, opts ...Option) (*Sink, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	if o.formatter == nil {
		return nil, configError("formatter is required")
	}
	endpoint, err := cfg.Endpoint()
	if err != nil {
		return nil, err
	}

	return &Sink{cfg: cfg, endpoint: endpoint, opts: o}, nil
}

// NewLogger returns a logger that delivers to a new Sink in batches of
// cfg.BatchPostingLimit at least every cfg.Period.
func NewLogger(cfg Config, opts ...Option) (*log.Logger, error) {
	sink, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return log.NewWithConfig(sink.cfg.MinimumLevel, log.BufferConfig{
		BatchSize: sink.cfg.BatchPostingLimit,
		Period:    sink.cfg.Period,
	}, sink), nil
}

// Name implements log.Transporter.
func (s *Sink) Name() string {
	return "logentries"
}

// Endpoint returns the collector the sink delivers to.
func (s *Sink) Endpoint() Endpoint {
	return s.endpoint
}

// Write sends a single entry as a batch of one.
func (s *Sink) Write(entry log.Entry) error {
	return s.WriteBatch(context.Background(), []log.Entry{entry})
}

// WriteBatch formats entries at or above the minimum level and delivers
// them as one batch. Entries the formatter rejects are logged and skipped.
func (s *Sink) WriteBatch(ctx context.Context, entries []log.Entry) error {
	s.records = s.records[:0]
	for _, entry := range entries {
		if !s.cfg.MinimumLevel.Enables(entry.Level) {
			continue
		}
		s.buf.Reset()
		if err := s.opts.formatter.Format(&s.buf, entry); err != nil {
			metrics.RecordsDropped.Inc()
			s.opts.diagnostics.Warn("dropping entry that could not be formatted",
				"message", entry.Message, log.ErrorKey, err)
			continue
		}
		s.records = append(s.records, Record{Token: s.cfg.Token, Text: s.buf.String()})
	}
	if len(s.records) == 0 {
		return nil
	}

	return s.emitterFor().EmitBatch(ctx, s.records)
}

// Close flushes and closes the connection. It is safe to call repeatedly.
func (s *Sink) Close() error {
	if s.emitter == nil {
		return nil
	}
	return s.emitter.Close()
}

func (s *Sink) emitterFor() *Emitter {
	if s.emitter == nil {
		manager := NewConnectionManager(s.endpoint, connectionOptions(s.cfg, s.opts))
		s.emitter = NewEmitter(manager, s.cfg.WriteTimeout, s.opts.diagnostics)
	}
	return s.emitter
}

func connectionOptions(cfg Config, o options) ConnectionOptions {
	return ConnectionOptions{
		ConnectTimeout:   cfg.ConnectTimeout,
		HandshakeTimeout: cfg.HandshakeTimeout,
		ResetInterval:    cfg.ConnectionResetInterval,
		TLSConfig:        o.tlsConfig,
		Logger:           o.diagnostics,
	}
}
