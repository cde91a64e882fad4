package sockopt

import "syscall"

// Status is what a non-blocking peek found on a socket.
type Status int

const (
	// Idle means nothing is pending and the connection is open.
	Idle Status = iota
	// Pending means bytes are waiting to be read.
	Pending
	// Closed means the peer sent FIN or the socket is unusable.
	Closed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	default:
		return "closed"
	}
}

// Probe reports whether the peer of c still holds the connection open.
// Pending bytes count as alive; callers layering a protocol over the
// socket should use Peek and consume them.
func Probe(c syscall.Conn) bool {
	return Peek(c) != Closed
}
