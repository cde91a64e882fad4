package logentries

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by this package matches exactly one of
// them with errors.Is.
var (
	// ErrConfiguration reports a missing token, an unknown region, a nil
	// formatter or an unparsable setting. It is returned at setup, never
	// while sending.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrConnect reports a refused, timed out or otherwise failed TCP
	// connection attempt.
	ErrConnect = errors.New("connect failed")

	// ErrHandshakeTimeout reports a TLS handshake that did not complete in
	// time. Errors of this kind also match context.DeadlineExceeded.
	ErrHandshakeTimeout = errors.New("TLS handshake timed out")

	// ErrAuthentication reports a TLS session that could not authenticate
	// the collector.
	ErrAuthentication = errors.New("TLS authentication failed")

	// ErrTransportWrite reports a write or flush failure part way through a
	// batch. The rest of the batch was not sent.
	ErrTransportWrite = errors.New("transport write failed")
)

// Error is a classified failure. Kind is one of the package sentinels and
// Err is the underlying cause.
type Error struct {
	Kind error
	Op   string
	Addr string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Addr != "" {
		msg = fmt.Sprintf("%s %s: %s", e.Op, e.Addr, msg)
	} else if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return "logentries: " + msg
}

// Is matches the error kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func configError(format string, args ...any) error {
	return &Error{Kind: ErrConfiguration, Op: "config", Err: fmt.Errorf(format, args...)}
}
