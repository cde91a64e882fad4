//go:build unix

package sockopt

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// Peek looks at most one byte ahead on c without blocking or consuming it.
// A readable socket that yields zero bytes means the peer sent FIN.
func Peek(c syscall.Conn) Status {
	raw, err := c.SyscallConn()
	if err != nil {
		return Closed
	}

	status := Closed
	var buf [1]byte
	err = raw.Read(func(fd uintptr) bool {
		n, _, rerr := unix.Recvfrom(int(fd), buf[:], unix.MSG_PEEK|unix.MSG_DONTWAIT)
		switch {
		case rerr == unix.EAGAIN || rerr == unix.EWOULDBLOCK || rerr == unix.EINTR:
			status = Idle
		case rerr != nil:
			status = Closed
		case n > 0:
			status = Pending
		default:
			status = Closed
		}
		// Never ask the poller to wait; a peek is a single syscall.
		return true
	})
	if err != nil {
		return Closed
	}
	return status
}
