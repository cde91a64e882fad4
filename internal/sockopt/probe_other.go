//go:build !unix

package sockopt

import "syscall"

// Peek reports the connection as idle when the platform offers no
// non-blocking peek. Dead connections then surface as write errors.
func Peek(c syscall.Conn) Status {
	if _, err := c.SyscallConn(); err != nil {
		return Closed
	}
	return Idle
}
