package log

import "context"

// Transporter defines the interface for log output destinations.
type Transporter interface {
	// Name returns the identifier for this transporter.
	Name() string

	// Write sends a log entry to the destination.
	Write(entry Entry) error

	// Close releases any resources held by the transporter.
	// After Close is called, Write should not be called.
	Close() error
}

// BatchTransporter is a Transporter that accepts a whole batch per call.
// Buffer prefers WriteBatch when a transporter implements it and retries
// the batch as a unit when it fails.
type BatchTransporter interface {
	Transporter

	// WriteBatch delivers entries in order. A non-nil error means the
	// batch as a whole was not delivered. Implementations must not retain
	// the slice after returning.
	WriteBatch(ctx context.Context, entries []Entry) error
}
