package logentries

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"

	"logentries-sink/internal/metrics"
	"logentries-sink/internal/sockopt"
	"logentries-sink/pkg/log"
)

// State is the lifecycle of the managed connection.
type State int

const (
	StateAbsent State = iota
	StateConnecting
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Stream is the buffered byte stream handed out by EnsureConnected. It is
// only valid until the next EnsureConnected or Close.
type Stream interface {
	io.Writer
	Flush() error
	SetWriteDeadline(t time.Time) error
}

// ConnectionOptions tunes a ConnectionManager. Zero values take the
// package defaults.
type ConnectionOptions struct {
	ConnectTimeout    time.Duration
	HandshakeTimeout  time.Duration
	KeepAliveIdle     time.Duration
	KeepAliveInterval time.Duration
	// ResetInterval replaces a connection older than this even when it is
	// healthy. Zero disables it.
	ResetInterval time.Duration
	// TLSConfig is cloned for every handshake. ServerName defaults to the
	// endpoint host.
	TLSConfig *tls.Config
	// Logger receives connection diagnostics.
	Logger *log.Logger
}

// ConnectionManager owns the single connection to the collector. It
// reconnects on demand and never retries on its own; callers decide when to
// try again. It is not safe for concurrent use.
type ConnectionManager struct {
	endpoint Endpoint
	opts     ConnectionOptions
	dialer   net.Dialer
	logger   *log.Logger

	state       State
	tcp         *net.TCPConn
	conn        net.Conn
	stream      *stream
	connectedAt time.Time
}

// NewConnectionManager returns a manager for endpoint. It does not connect.
func NewConnectionManager(endpoint Endpoint, opts ConnectionOptions) *ConnectionManager {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opts.KeepAliveIdle <= 0 {
		opts.KeepAliveIdle = DefaultKeepAliveIdle
	}
	if opts.KeepAliveInterval <= 0 {
		opts.KeepAliveInterval = DefaultKeepAliveInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = diagnostics()
	}

	return &ConnectionManager{
		endpoint: endpoint,
		opts:     opts,
		// Keep-alive is configured per connection in tune.
		dialer: net.Dialer{Timeout: opts.ConnectTimeout, KeepAlive: -1},
		logger: logger.With("address", endpoint.Address()),
	}
}

// Address returns the collector's host:port.
func (m *ConnectionManager) Address() string {
	return m.endpoint.Address()
}

// State returns the current connection state.
func (m *ConnectionManager) State() State {
	return m.state
}

// IsConnected probes the socket without blocking. A socket the peer has
// closed reports false.
//
// Over TLS the collector may leave records on the socket after the
// handshake, such as TLS 1.3 session tickets. Those are read through the
// TLS layer so a FIN queued behind them is still noticed.
func (m *ConnectionManager) IsConnected() bool {
	if m.state != StateReady || m.tcp == nil {
		return false
	}
	tc, ok := m.conn.(*tls.Conn)
	if !ok {
		return sockopt.Probe(m.tcp)
	}
	for range maxPendingRecords {
		switch sockopt.Peek(m.tcp) {
		case sockopt.Idle:
			return true
		case sockopt.Closed:
			return false
		}
		if !drainTLS(tc) {
			return false
		}
	}
	// Still receiving data, so the peer is alive.
	return true
}

const (
	// maxPendingRecords bounds how many rounds of inbound TLS data one
	// liveness check consumes.
	maxPendingRecords = 4
	// drainWindow is how long a liveness check waits for the rest of a
	// partially received TLS record.
	drainWindow = 10 * time.Millisecond
)

// drainTLS lets the TLS layer consume bytes waiting on the socket. It
// reports false when that read shows the connection is gone. The
// collector never sends application data, so anything read is discarded.
func drainTLS(tc *tls.Conn) bool {
	// A deadline already in the past fails before any read is attempted,
	// so the window must lie ahead.
	if err := tc.SetReadDeadline(time.Now().Add(drainWindow)); err != nil {
		return false
	}
	defer tc.SetReadDeadline(time.Time{})

	var buf [1]byte
	_, err := tc.Read(buf[:])
	return err == nil || isTimeout(err)
}

// EnsureConnected returns a stream to the collector, reusing the current
// connection when it is still alive and connecting afresh otherwise. A
// failed attempt is logged and returned; the manager is left without a
// connection.
func (m *ConnectionManager) EnsureConnected(ctx context.Context) (Stream, error) {
	if m.IsConnected() && !m.shouldReset() {
		return m.stream, nil
	}

	m.dispose()
	m.state = StateConnecting

	tcp, conn, err := m.connect(ctx)
	if err != nil {
		m.state = StateFailed
		m.logConnectError(err)
		metrics.ConnectsTotal.WithLabelValues(connectResult(err)).Inc()
		return nil, err
	}

	m.tcp = tcp
	m.conn = conn
	m.stream = &stream{Writer: bufio.NewWriter(conn), conn: conn}
	m.connectedAt = time.Now()
	m.state = StateReady
	metrics.ConnectsTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	m.logger.Debug("connected to collector", "tls", m.endpoint.UseTLS)

	return m.stream, nil
}

// Flush writes out anything buffered on the current stream.
func (m *ConnectionManager) Flush() error {
	if m.stream == nil {
		return nil
	}
	return m.stream.Flush()
}

// Close drops the connection. It is safe to call repeatedly and never
// fails; close errors are logged.
func (m *ConnectionManager) Close() error {
	m.dispose()
	return nil
}

func (m *ConnectionManager) shouldReset() bool {
	return m.opts.ResetInterval > 0 && time.Since(m.connectedAt) > m.opts.ResetInterval
}

func (m *ConnectionManager) connect(ctx context.Context) (*net.TCPConn, net.Conn, error) {
	addr := m.endpoint.Address()

	raw, err := m.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, &Error{Kind: ErrConnect, Op: "dial", Addr: addr, Err: err}
	}
	tcp, ok := raw.(*net.TCPConn)
	if !ok {
		raw.Close()
		return nil, nil, &Error{Kind: ErrConnect, Op: "dial", Addr: addr, Err: fmt.Errorf("unexpected connection type %T", raw)}
	}
	m.tune(tcp)

	if !m.endpoint.UseTLS {
		return tcp, tcp, nil
	}
	conn, err := m.handshake(ctx, tcp)
	if err != nil {
		tcp.Close()
		return nil, nil, err
	}
	return tcp, conn, nil
}

// tune applies keep-alive and disables Nagle. Failures leave the OS
// defaults in place.
func (m *ConnectionManager) tune(tcp *net.TCPConn) {
	if err := tcp.SetNoDelay(true); err != nil {
		m.logger.Debug("could not disable Nagle", log.ErrorKey, err)
	}
	err := tcp.SetKeepAliveConfig(net.KeepAliveConfig{
		Enable:   true,
		Idle:     m.opts.KeepAliveIdle,
		Interval: m.opts.KeepAliveInterval,
	})
	if err != nil {
		m.logger.Debug("keep-alive tuning not supported, using OS defaults", log.ErrorKey, err)
	}
}

func (m *ConnectionManager) handshake(ctx context.Context, tcp *net.TCPConn) (*tls.Conn, error) {
	addr := m.endpoint.Address()

	cfg := &tls.Config{}
	if m.opts.TLSConfig != nil {
		cfg = m.opts.TLSConfig.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = m.endpoint.Host
	}

	conn := tls.Client(tcp, cfg)
	hctx, cancel := context.WithTimeout(ctx, m.opts.HandshakeTimeout)
	defer cancel()

	err := conn.HandshakeContext(hctx)
	if err != nil {
		// The deadline can fire while the handshake is failing for another
		// reason, so the context decides the kind.
		if errors.Is(hctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &Error{
				Kind: ErrHandshakeTimeout,
				Op:   "handshake",
				Addr: addr,
				Err:  fmt.Errorf("no TLS response within %s: %w", m.opts.HandshakeTimeout, context.DeadlineExceeded),
			}
		}
		if ctx.Err() != nil {
			return nil, &Error{Kind: ErrConnect, Op: "handshake", Addr: addr, Err: ctx.Err()}
		}
		if isAuthenticationError(err) {
			return nil, &Error{Kind: ErrAuthentication, Op: "handshake", Addr: addr, Err: err}
		}
		return nil, &Error{Kind: ErrConnect, Op: "handshake", Addr: addr, Err: err}
	}

	state := conn.ConnectionState()
	if !state.HandshakeComplete || (len(state.PeerCertificates) == 0 && !cfg.InsecureSkipVerify) {
		conn.Close()
		return nil, &Error{Kind: ErrAuthentication, Op: "handshake", Addr: addr, Err: errors.New("collector presented no certificate")}
	}
	return conn, nil
}

func (m *ConnectionManager) dispose() {
	if m.conn != nil {
		// Unflushed bytes belong to a batch that already failed, so they
		// go with the connection.
		var result *multierror.Error
		for _, c := range []io.Closer{m.conn, m.tcp} {
			if c == nil {
				continue
			}
			if err := c.Close(); err != nil && !isExpectedCloseError(err) {
				result = multierror.Append(result, err)
			}
		}
		if err := result.ErrorOrNil(); err != nil {
			m.logger.Warn("error closing connection", log.ErrorKey, err)
		}
	}
	m.tcp = nil
	m.conn = nil
	m.stream = nil
	m.state = StateAbsent
}

func (m *ConnectionManager) logConnectError(err error) {
	var msg string
	switch {
	case errors.Is(err, ErrHandshakeTimeout):
		msg = "timed out negotiating TLS - is the collector speaking TLS on this port?"
	case errors.Is(err, ErrAuthentication):
		msg = "unable to connect to secure server"
	case errors.Is(err, syscall.ECONNREFUSED):
		msg = "connection refused - is the server listening?"
	case isTimeout(err):
		msg = "timed out connecting - is a firewall blocking traffic?"
	default:
		msg = "unable to connect"
	}
	m.logger.Error(msg, log.ErrorKey, err)
}

func connectResult(err error) string {
	switch {
	case errors.Is(err, ErrHandshakeTimeout):
		return metrics.ResultHandshakeTimeout
	case errors.Is(err, ErrAuthentication):
		return metrics.ResultAuthentication
	case errors.Is(err, syscall.ECONNREFUSED):
		return metrics.ResultRefused
	case isTimeout(err):
		return metrics.ResultTimeout
	default:
		return metrics.ResultError
	}
}

// isAuthenticationError reports handshake failures where the TLS exchange
// itself was refused: certificate verification, an alert from the peer or
// a peer that does not speak TLS. Socket failures are not included.
func isAuthenticationError(err error) bool {
	var (
		verifyErr  *tls.CertificateVerificationError
		unknownCA  x509.UnknownAuthorityError
		hostErr    x509.HostnameError
		invalidErr x509.CertificateInvalidError
		alertErr   tls.AlertError
		recordErr  tls.RecordHeaderError
		opErr      *net.OpError
	)
	switch {
	case errors.As(err, &verifyErr),
		errors.As(err, &unknownCA),
		errors.As(err, &hostErr),
		errors.As(err, &invalidErr),
		errors.As(err, &alertErr),
		errors.As(err, &recordErr):
		return true
	case errors.As(err, &opErr):
		// Alerts received from the peer arrive as a "remote error".
		return opErr.Op == "remote error"
	}
	return false
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// isExpectedCloseError reports errors from closing a connection that was
// already torn down.
func isExpectedCloseError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}

type stream struct {
	*bufio.Writer
	conn net.Conn
}

func (s *stream) SetWriteDeadline(t time.Time) error {
	return s.conn.SetWriteDeadline(t)
}
