// Package transport adapts a raw, non-blocking socket to the engine's
// suspension protocol: Connect resolves and dials, Read/Write never block
// and instead return a suspend.PollNeeded when the kernel isn't ready, and
// optional TLS/proxy hops are layered on before the connection is handed to
// the pipeline state machine. Its connect/tunnel/TLS-handshake sequencing
// follows a blocking connect/connectDirect/connectViaProxy/BuildTLSConfig
// lineage, adapted from blocking net.Conn calls to non-blocking raw sockets
// with SetNonblock and EAGAIN-driven suspension.
package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"golang.org/x/sys/unix"

	"github.com/WhileEndless/go-httpengine/pkg/httperr"
	"github.com/WhileEndless/go-httpengine/pkg/suspend"
)

// ProxyMode selects how Options.ProxyAddr is used.
type ProxyMode int

const (
	// ProxyNone disables proxying; Connect dials the target directly.
	ProxyNone ProxyMode = iota
	// ProxyAbsoluteForm sends plain-HTTP requests in absolute-form to the
	// proxy, which forwards them; no separate tunnel handshake occurs.
	ProxyAbsoluteForm
	// ProxyTunnel issues an HTTP CONNECT to the proxy and, once it reports
	// success, treats the socket as a direct tunnel to the target (used for
	// HTTPS through an HTTP proxy). Grounded in the Python original's
	// `_tunnel`.
	ProxyTunnel
)

// Options configures how Connect establishes the underlying socket.
type Options struct {
	TLS            *tls.Config // nil means plain TCP
	ConnectTimeout time.Duration
	ProxyAddr      string // "host:port" of the proxy, empty to disable
	ProxyMode      ProxyMode
}

// Timing records wall-clock durations for each phase of connection setup.
// It is purely a read-only diagnostic attached to the Conn: nothing in the
// pipeline state machine consults it.
type Timing struct {
	DNSLookup     time.Duration
	TCPConnect    time.Duration
	ProxyConnect  time.Duration
	TLSHandshake  time.Duration
}

// Conn is a non-blocking socket wrapped for the suspension protocol. Reads
// and writes never block the calling goroutine; instead they return
// *suspend.PollNeeded describing what progress requires.
type Conn struct {
	fd         int
	tlsConn    *tls.Conn // set once a TLS handshake has been layered on
	remoteAddr string
	Timing     Timing
}

// Connect resolves host, dials port (optionally through a proxy), and
// performs the TLS handshake (if opts.TLS is non-nil) or CONNECT tunnel (if
// opts.ProxyMode is ProxyTunnel) before returning. This initial handshake
// sequence runs to completion rather than suspending, matching spec.md's
// framing of connect as an external collaborator (DNS/TLS context
// construction) whose *policy* is out of scope but whose wiring belongs
// here; only the steady-state read/write loop participates in suspension.
func Connect(host string, port int, opts Options) (*Conn, error) {
	dialTarget := net.JoinHostPort(host, strconv.Itoa(port))
	dialAddr := dialTarget
	if opts.ProxyAddr != "" {
		dialAddr = opts.ProxyAddr
	}

	dnsStart := time.Now()
	ips, err := net.LookupIP(splitHost(dialAddr))
	dnsLookup := time.Since(dnsStart)
	if err != nil {
		return nil, classifyDNSError(err)
	}
	if len(ips) == 0 {
		return nil, httperr.NewHostnameNotResolvable(fmt.Errorf("no addresses for %s", dialAddr))
	}

	tcpStart := time.Now()
	netConn, err := net.DialTimeout("tcp", dialAddr, deadlineOrDefault(opts.ConnectTimeout))
	tcpConnect := time.Since(tcpStart)
	if err != nil {
		return nil, httperr.NewConnectionTimedOut(err.Error())
	}

	tcpConn, ok := netConn.(*net.TCPConn)
	if !ok {
		netConn.Close()
		return nil, fmt.Errorf("transport: expected *net.TCPConn, got %T", netConn)
	}
	rawConn, err := tcpConn.SyscallConn()
	if err != nil {
		netConn.Close()
		return nil, err
	}
	var fd int
	if err := rawConn.Control(func(sysfd uintptr) { fd = int(sysfd) }); err != nil {
		netConn.Close()
		return nil, err
	}
	dupFd, err := unix.Dup(fd)
	if err != nil {
		netConn.Close()
		return nil, err
	}
	netConn.Close() // the dup keeps the descriptor alive
	if err := unix.SetNonblock(dupFd, true); err != nil {
		unix.Close(dupFd)
		return nil, err
	}

	c := &Conn{fd: dupFd, remoteAddr: dialTarget}
	c.Timing.DNSLookup = dnsLookup
	c.Timing.TCPConnect = tcpConnect

	if opts.ProxyAddr != "" && opts.ProxyMode == ProxyTunnel {
		tunnelStart := time.Now()
		if err := c.tunnel(dialTarget); err != nil {
			c.Close()
			return nil, err
		}
		c.Timing.ProxyConnect = time.Since(tunnelStart)
	}

	if opts.TLS != nil {
		tlsStart := time.Now()
		if err := c.handshakeTLS(opts.TLS, host); err != nil {
			c.Close()
			return nil, err
		}
		c.Timing.TLSHandshake = time.Since(tlsStart)
	}

	return c, nil
}

// tunnel issues a blocking-style CONNECT request over the still-nonblocking
// fd (retrying on EAGAIN) and confirms the 200 response, per the Python
// original's `_tunnel`.
func (c *Conn) tunnel(target string) error {
	req := fmt.Sprintf("CONNECT %s HTTP/1.1\r\nHost: %s\r\n\r\n", target, target)
	if err := c.writeAllBlocking([]byte(req)); err != nil {
		return err
	}
	resp, err := c.readUntilHeadersEndBlocking()
	if err != nil {
		return err
	}
	if !isSuccessfulConnect(resp) {
		return httperr.NewUnsupportedResponse(fmt.Sprintf("proxy CONNECT failed: %q", firstLine(resp)))
	}
	return nil
}

// handshakeTLS layers TLS onto the still-nonblocking fd via rawFDConn, so
// the resulting tls.Conn keeps participating in the suspension protocol
// once Connect returns. crypto/tls only avoids permanently poisoning a
// connection on a read/write error when that error satisfies net.Error
// with Timeout() true, so rawFDConn reports EAGAIN as wouldBlockError
// (which implements net.Error) rather than a plain error. The handshake
// itself still runs to completion here, synchronously, driven by a private
// Poller — the same "connect is an external collaborator that runs before
// the pipeline sees the connection" framing Connect already uses for DNS,
// dial, and the CONNECT tunnel.
func (c *Conn) handshakeTLS(cfg *tls.Config, host string) error {
	cfgClone := cfg.Clone()
	if cfgClone.ServerName == "" {
		cfgClone.ServerName = host
	}
	tlsConn := tls.Client(&rawFDConn{fd: c.fd}, cfgClone)

	poller, err := suspend.NewPoller()
	if err != nil {
		return err
	}
	defer poller.Close()

	for {
		err := tlsConn.Handshake()
		if err == nil {
			c.tlsConn = tlsConn
			return nil
		}
		if _, ok := err.(*wouldBlockError); !ok {
			return fmt.Errorf("transport: TLS handshake: %w", err)
		}
		// crypto/tls does not report which direction it blocked on, so wait
		// on both; whichever fires lets Handshake make progress on retry.
		need := suspend.PollNeeded{FD: c.fd, Interest: suspend.Readable | suspend.Writable}
		if _, err := poller.Wait(need, -1); err != nil {
			return err
		}
	}
}

// rawFDConn adapts the engine's raw non-blocking fd to the net.Conn
// interface crypto/tls requires, reporting EAGAIN as a Timeout()-flavored
// net.Error instead of blocking so a suspended TLS handshake or record read
// never poisons the tls.Conn the way an ordinary I/O error would.
type rawFDConn struct {
	fd int
}

func (r *rawFDConn) Read(p []byte) (int, error) {
	n, err := unix.Read(r.fd, p)
	if err != nil {
		if suspend.IsWouldBlock(err) {
			return 0, &wouldBlockError{}
		}
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (r *rawFDConn) Write(p []byte) (int, error) {
	n, err := unix.Write(r.fd, p)
	if err != nil {
		if suspend.IsWouldBlock(err) {
			return n, &wouldBlockError{}
		}
		return n, err
	}
	return n, nil
}

// Close is a no-op: the fd's lifecycle belongs to Conn, not to the tls.Conn
// layered over it, so tls.Conn.Close()'s close_notify write must not tear
// down the socket out from under Conn.Close.
func (r *rawFDConn) Close() error                     { return nil }
func (r *rawFDConn) LocalAddr() net.Addr              { return nil }
func (r *rawFDConn) RemoteAddr() net.Addr             { return nil }
func (r *rawFDConn) SetDeadline(time.Time) error      { return nil }
func (r *rawFDConn) SetReadDeadline(time.Time) error  { return nil }
func (r *rawFDConn) SetWriteDeadline(time.Time) error { return nil }

// wouldBlockError is rawFDConn's EAGAIN signal. It implements net.Error so
// crypto/tls treats it as transient rather than fatal.
type wouldBlockError struct{}

func (*wouldBlockError) Error() string   { return "transport: fd would block" }
func (*wouldBlockError) Timeout() bool   { return true }
func (*wouldBlockError) Temporary() bool { return true }

// Read performs one non-blocking read attempt. If the socket (or, over
// TLS, the record layer) has no data ready, it returns a
// *suspend.PollNeeded rather than blocking; the caller is expected to wait
// on it (via suspend.Poller or its own event loop) and retry.
func (c *Conn) Read(p []byte) (int, error) {
	if c.tlsConn != nil {
		n, err := c.tlsConn.Read(p)
		if err != nil {
			if _, ok := err.(*wouldBlockError); ok {
				return n, &suspend.PollNeeded{FD: c.fd, Interest: suspend.Readable}
			}
			if err == io.EOF {
				return n, httperr.NewConnectionClosed("peer closed connection")
			}
			return n, httperr.NewConnectionClosed(err.Error())
		}
		return n, nil
	}
	n, err := unix.Read(c.fd, p)
	if err != nil {
		if suspend.IsWouldBlock(err) {
			return 0, &suspend.PollNeeded{FD: c.fd, Interest: suspend.Readable}
		}
		return 0, httperr.NewConnectionClosed(err.Error())
	}
	if n == 0 {
		return 0, httperr.NewConnectionClosed("peer closed connection")
	}
	return n, nil
}

// Write performs one non-blocking write attempt, returning a PollNeeded if
// the socket buffer (or, over TLS, the record layer) is not currently
// writable.
func (c *Conn) Write(p []byte) (int, error) {
	if c.tlsConn != nil {
		n, err := c.tlsConn.Write(p)
		if err != nil {
			if _, ok := err.(*wouldBlockError); ok {
				return n, &suspend.PollNeeded{FD: c.fd, Interest: suspend.Writable}
			}
			return n, httperr.NewConnectionClosed(err.Error())
		}
		return n, nil
	}
	n, err := unix.Write(c.fd, p)
	if err != nil {
		if suspend.IsWouldBlock(err) {
			return 0, &suspend.PollNeeded{FD: c.fd, Interest: suspend.Writable}
		}
		return 0, httperr.NewConnectionClosed(err.Error())
	}
	return n, nil
}

// FD exposes the raw descriptor for callers driving their own poller.
func (c *Conn) FD() int { return c.fd }

// Close releases the socket. Over TLS it first attempts a close_notify;
// since rawFDConn.Close is a no-op, the fd itself is always closed here
// regardless of whether that alert could be written.
func (c *Conn) Close() error {
	if c.tlsConn != nil {
		_ = c.tlsConn.Close()
	}
	return unix.Close(c.fd)
}

// PeerCertificates returns the certificate chain presented by the peer, or
// nil if the connection is not using TLS.
func (c *Conn) PeerCertificates() []*x509.Certificate {
	if c.tlsConn == nil {
		return nil
	}
	return c.tlsConn.ConnectionState().PeerCertificates
}

func deadlineOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return 30 * time.Second
	}
	return d
}

func classifyDNSError(err error) error {
	if dnsErr, ok := err.(*net.DNSError); ok {
		if dnsErr.IsNotFound {
			return httperr.NewHostnameNotResolvable(err)
		}
		return httperr.NewDNSUnavailable(err)
	}
	return httperr.NewDNSUnavailable(err)
}

func splitHost(hostport string) string {
	host, _, err := net.SplitHostPort(hostport)
	if err != nil {
		return hostport
	}
	return host
}
