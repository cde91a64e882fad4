package logentries

import (
	"bufio"
	"crypto/tls"
	"crypto/x509"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"logentries-sink/pkg/log"
	"logentries-sink/pkg/log/transporters"
)

// collector is an in-process line collector standing in for Logentries.
type collector struct {
	ln      net.Listener
	lines   chan string
	accepts atomic.Int32

	mu    sync.Mutex
	conns []net.Conn
}

func newCollector(t *testing.T) *collector {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return serveCollector(t, ln)
}

// newTLSCollector serves TLS with the httptest certificate, valid for
// 127.0.0.1. The returned pool trusts it.
func newTLSCollector(t *testing.T) (*collector, *x509.CertPool) {
	t.Helper()

	srv := httptest.NewUnstartedServer(http.NotFoundHandler())
	srv.StartTLS()
	t.Cleanup(srv.Close)

	ln, err := tls.Listen("tcp", "127.0.0.1:0", srv.TLS)
	require.NoError(t, err)

	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())
	return serveCollector(t, ln), pool
}

func serveCollector(t *testing.T, ln net.Listener) *collector {
	c := &collector{ln: ln, lines: make(chan string, 256)}
	go c.serve()
	t.Cleanup(func() {
		ln.Close()
		c.dropConnections()
	})
	return c
}

func (c *collector) serve() {
	for {
		conn, err := c.ln.Accept()
		if err != nil {
			return
		}
		c.accepts.Add(1)
		c.mu.Lock()
		c.conns = append(c.conns, conn)
		c.mu.Unlock()
		go c.read(conn)
	}
}

func (c *collector) read(conn net.Conn) {
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		c.lines <- line
	}
}

// next returns the next frame received, including its trailing newline.
func (c *collector) next(t *testing.T) string {
	t.Helper()

	select {
	case line := <-c.lines:
		return line
	case <-time.After(3 * time.Second):
		t.Fatal("collector received nothing")
		return ""
	}
}

func (c *collector) dropConnections() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, conn := range c.conns {
		conn.Close()
	}
	c.conns = nil
}

func (c *collector) addr() string {
	return c.ln.Addr().String()
}

func (c *collector) endpoint(t *testing.T, useTLS bool) Endpoint {
	t.Helper()
	return endpointFor(t, c.addr(), useTLS)
}

func endpointFor(t *testing.T, addr string, useTLS bool) Endpoint {
	t.Helper()

	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	n, err := strconv.Atoi(port)
	require.NoError(t, err)
	return Endpoint{Host: host, Port: n, UseTLS: useTLS}
}

// closedAddr returns a loopback address nothing listens on.
func closedAddr(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

// silentListener accepts connections and never writes to them.
func silentListener(t *testing.T) net.Listener {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var held []net.Conn
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			held = append(held, conn)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		for _, conn := range held {
			conn.Close()
		}
		mu.Unlock()
	})
	return ln
}

// captureDiagnostics returns a logger whose output is kept as JSON lines.
func captureDiagnostics(t *testing.T) (*log.Logger, *lockedBuffer) {
	t.Helper()

	out := &lockedBuffer{}
	l := log.NewWithConfig(log.Trace, log.BufferConfig{BatchSize: 1}, transporters.NewStdoutWithWriter(out))
	t.Cleanup(func() { l.Close() })
	return l, out
}

func quietLogger(t *testing.T) *log.Logger {
	t.Helper()

	l := log.New(log.Fatal, transporters.NewStdoutWithWriter(io.Discard))
	t.Cleanup(func() { l.Close() })
	return l
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

func listenOn(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}

// scriptedListener runs handle on every accepted connection and closes
// whatever is still open at cleanup.
func scriptedListener(t *testing.T, handle func(net.Conn)) net.Listener {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var held []net.Conn
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			held = append(held, conn)
			mu.Unlock()
			go handle(conn)
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		for _, conn := range held {
			conn.Close()
		}
		mu.Unlock()
	})
	return ln
}
