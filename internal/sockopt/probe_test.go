//go:build unix

package sockopt

import (
	"net"
	"testing"
	"time"
)

// pair returns a connected client/server pair on the loopback interface.
func pair(t *testing.T) (*net.TCPConn, *net.TCPConn) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- c
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	server, ok := <-accepted
	if !ok {
		t.Fatal("Accept() failed")
	}
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client.(*net.TCPConn), server.(*net.TCPConn)
}

func TestProbe_IdleConnection_Alive(t *testing.T) {
	client, _ := pair(t)

	if !Probe(client) {
		t.Error("Probe() = false, want true for an idle open connection")
	}
}

func TestProbe_PendingData_Alive(t *testing.T) {
	client, server := pair(t)

	if _, err := server.Write([]byte("x")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if !Probe(client) {
		t.Error("Probe() = false, want true while bytes are pending")
	}

	// The peek must not consume the byte.
	buf := make([]byte, 1)
	client.SetReadDeadline(time.Now().Add(time.Second))
	if n, err := client.Read(buf); err != nil || n != 1 || buf[0] != 'x' {
		t.Errorf("Read() = %d, %v, %q; want 1, nil, \"x\"", n, err, buf)
	}
}

func TestProbe_PeerClosed_Dead(t *testing.T) {
	client, server := pair(t)

	server.Close()
	time.Sleep(20 * time.Millisecond)

	if Probe(client) {
		t.Error("Probe() = true, want false after the peer closed")
	}
}

func TestProbe_LocallyClosed_Dead(t *testing.T) {
	client, _ := pair(t)

	client.Close()

	if Probe(client) {
		t.Error("Probe() = true, want false on a closed connection")
	}
}

func TestPeek_ReportsStatus(t *testing.T) {
	client, server := pair(t)

	if got := Peek(client); got != Idle {
		t.Errorf("Peek() = %v, want %v", got, Idle)
	}

	if _, err := server.Write([]byte("x")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	waitFor(t, func() bool { return Peek(client) == Pending })

	// Consume the byte, then close: the FIN is all that remains.
	buf := make([]byte, 1)
	client.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := client.Read(buf); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	server.Close()
	waitFor(t, func() bool { return Peek(client) == Closed })
}

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{Idle, "idle"},
		{Pending, "pending"},
		{Closed, "closed"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", int(tt.status), got, tt.want)
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 2s")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
