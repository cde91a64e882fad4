package logentries

import (
	"context"
	"fmt"
	"time"

	"logentries-sink/internal/metrics"
	"logentries-sink/pkg/log"
)

// Record is one rendered log line and the token that prefixes it.
type Record struct {
	Token string
	Text  string
}

// Connector hands out a connected stream. ConnectionManager is the
// production implementation.
type Connector interface {
	EnsureConnected(ctx context.Context) (Stream, error)
	Address() string
	Flush() error
	Close() error
}

// Emitter writes batches of records over a Connector. Like the connector
// it wraps, it expects a single caller at a time.
type Emitter struct {
	conn         Connector
	writeTimeout time.Duration
	logger       *log.Logger
	frame        []byte
}

// NewEmitter returns an emitter writing through conn. A positive
// writeTimeout bounds each batch; logger receives write failures and
// defaults to the package diagnostics logger.
func NewEmitter(conn Connector, writeTimeout time.Duration, logger *log.Logger) *Emitter {
	if logger == nil {
		logger = diagnostics()
	}
	return &Emitter{
		conn:         conn,
		writeTimeout: writeTimeout,
		logger:       logger.With("address", conn.Address()),
	}
}

// EmitBatch writes one frame per record in order and flushes once. The
// batch is all or nothing: the first failure stops it, drops the
// connection and returns a single ErrTransportWrite error. Connection
// errors from the connector are returned unchanged.
//
// The stream is buffered, so a socket failure surfaces on the write that
// overflows the buffer or on the final flush. The record named in the
// error is where the batch stopped, not necessarily the frame the network
// rejected, and a frame may reach the socket in more than one write.
func (e *Emitter) EmitBatch(ctx context.Context, batch []Record) error {
	if len(batch) == 0 {
		return nil
	}

	stream, err := e.conn.EnsureConnected(ctx)
	if err != nil {
		return err
	}

	if e.writeTimeout > 0 {
		deadline := time.Now().Add(e.writeTimeout)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		if err := stream.SetWriteDeadline(deadline); err != nil {
			return e.fail("set write deadline", err)
		}
	}

	var sent int
	for i, rec := range batch {
		e.frame = AppendFrame(e.frame[:0], rec.Token, rec.Text)
		if _, err := stream.Write(e.frame); err != nil {
			return e.fail(fmt.Sprintf("writing batch at record %d of %d", i+1, len(batch)), err)
		}
		sent += len(e.frame)
	}
	if err := stream.Flush(); err != nil {
		return e.fail("flush", err)
	}
	if e.writeTimeout > 0 {
		_ = stream.SetWriteDeadline(time.Time{})
	}

	metrics.FramesSent.Add(float64(len(batch)))
	metrics.BytesSent.Add(float64(sent))
	return nil
}

// Close flushes whatever is buffered, ignoring failures, and closes the
// connection.
func (e *Emitter) Close() error {
	if err := e.conn.Flush(); err != nil {
		e.logger.Debug("flush on close failed", log.ErrorKey, err)
	}
	return e.conn.Close()
}

func (e *Emitter) fail(step string, err error) error {
	e.logger.Error("failed to write to collector", "step", step, log.ErrorKey, err)
	metrics.BatchErrors.Inc()
	e.conn.Close()
	return &Error{Kind: ErrTransportWrite, Op: "write", Addr: e.conn.Address(), Err: fmt.Errorf("%s: %w", step, err)}
}
