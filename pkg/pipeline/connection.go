// Package pipeline implements the Pipeline State Machine: the single
// exported Connection type that drives one TCP/TLS connection through
// however many pipelined request/response cycles the caller issues,
// surfacing *suspend.PollNeeded instead of blocking whenever it needs more
// I/O. It is the direct Go-idiom descendant of the Python original's
// HTTPConnection (httpio/__init__.py): the same pending-request FIFO,
// out_remaining/in_remaining bookkeeping, and Expect:100-continue
// rendezvous, expressed as explicit return values instead of generator
// `yield` suspension.
package pipeline

import (
	"crypto/x509"
	"fmt"

	"github.com/WhileEndless/go-httpengine/pkg/buffer"
	"github.com/WhileEndless/go-httpengine/pkg/chunked"
	"github.com/WhileEndless/go-httpengine/pkg/httperr"
	"github.com/WhileEndless/go-httpengine/pkg/request"
	"github.com/WhileEndless/go-httpengine/pkg/response"
	"github.com/WhileEndless/go-httpengine/pkg/suspend"
	"github.com/WhileEndless/go-httpengine/pkg/transport"
)

// sendState tracks what, if anything, is still owed on the write side of a
// request that has been handed to SendRequest but not yet fully written. It
// stays at the head of pendingSend until sendComplete reports true, which
// may be long after its head bytes have gone out — an Expect:100-continue
// or streamed-body request still owes bytes (or a rendezvous) that must
// finish before the next request's head is allowed onto the wire.
type sendState struct {
	method    string
	expect100 bool

	head             []byte // unwritten portion of the request line + header block
	bodyMode         request.BodyMode
	bodyRemaining    int64 // FixedLength: bytes still owed; Chunked: ignored, caller frames chunks itself
	chunkedDone      bool  // Chunked: true once the terminating chunk has been written
	awaitingContinue bool  // set by SendRequest for Expect100 requests; cleared when ReadResponse consumes the 100-continue

	pendingChunk      []byte // unwritten tail of the chunk frame WriteChunk is currently flushing
	pendingChunkFinal bool   // true if pendingChunk is the terminating (data==nil) chunk
}

// sendComplete reports whether ss has nothing left to write: its head is
// fully flushed, it isn't still waiting on a 100-continue rendezvous, and
// its body (if any) has been fully written.
func (ss *sendState) sendComplete() bool {
	if len(ss.head) > 0 || ss.awaitingContinue {
		return false
	}
	switch ss.bodyMode {
	case request.FixedLength:
		return ss.bodyRemaining == 0
	case request.Chunked:
		return ss.chunkedDone
	default:
		return true
	}
}

// recvState tracks the response-parsing state for the request at the head
// of the pending FIFO.
type recvState struct {
	method     string
	parser     *response.Parser
	resp       *response.Response // set once ParseHead completes
	body       *response.BodyReader
	sawFinal   bool // true once a non-1xx response has been parsed (vs. a 100-continue interim)
}

// Config bundles the per-connection options the pipeline consults. TLS and
// proxy wiring live in transport.Options; Config covers behavior this
// package owns.
type Config struct {
	// AutoDecompress, when true, runs gzip/deflate/brotli/zstd decompression
	// over a body fully assembled via ReadAll. Off by default — see
	// SPEC_FULL.md's opt-in decompression section.
	AutoDecompress bool
	// MaxHeadBytes bounds how large the status-line+header block of a single
	// response may grow before it's treated as abuse. 0 means buffer.DefaultMax.
	MaxHeadBytes int
}

// Connection is a single HTTP/1.1 connection driven by suspension rather
// than blocking calls. All methods that touch the network return a
// *suspend.PollNeeded instead of blocking when the kernel isn't ready; the
// caller is expected to wait on it (directly or via its own event loop) and
// call the same method again.
type Connection struct {
	conn   *transport.Conn
	config Config

	recvBuf *buffer.Buffer

	pendingSend []*sendState // FIFO of requests whose bytes are still being written
	pendingRecv []*recvState // FIFO of requests awaiting/receiving a response

	closed bool
}

// Connect dials host:port (optionally through a proxy, optionally over
// TLS) and returns a Connection ready for SendRequest. This initial
// handshake runs synchronously to completion — only the steady-state
// request/response loop participates in suspension, matching spec.md's
// framing of connect as an external collaborator.
func Connect(host string, port int, topts transport.Options, cfg Config) (*Connection, error) {
	tc, err := transport.Connect(host, port, topts)
	if err != nil {
		return nil, err
	}
	return &Connection{
		conn:    tc,
		config:  cfg,
		recvBuf: buffer.New(cfg.MaxHeadBytes),
	}, nil
}

// Disconnect closes the underlying socket. Any requests still pending a
// response are abandoned; ResponsePending will report them gone.
func (c *Connection) Disconnect() error {
	c.closed = true
	c.pendingSend = nil
	c.pendingRecv = nil
	return c.conn.Close()
}

// PeerCertificates exposes the TLS certificate chain presented by the peer,
// nil over plain TCP.
func (c *Connection) PeerCertificates() []*x509.Certificate {
	return c.conn.PeerCertificates()
}

// Timing exposes the read-only connection-setup diagnostics (DNS lookup,
// TCP connect, proxy connect, TLS handshake durations).
func (c *Connection) Timing() transport.Timing {
	return c.conn.Timing
}

// ResponsePending reports whether at least one request has been sent whose
// response has not yet been fully read — the FIFO depth, not just whether
// bytes are buffered.
func (c *Connection) ResponsePending() bool {
	return len(c.pendingRecv) > 0
}

// SendRequest encodes req and enqueues it for writing. It does not block
// for the write to complete — call FlushSend to drive the bytes onto the
// wire; ReadResponse does not flush. Per spec.md's
// pipelining model, multiple requests may be queued via SendRequest before
// any of their responses are read, as long as the send-side framing rules
// (one FixedLength/Chunked body fully written before the next request's
// head goes out) are respected by the caller's write sequencing.
func (c *Connection) SendRequest(req *request.Request) error {
	if c.closed {
		return httperr.NewStateError("SendRequest called on a closed connection")
	}
	head, err := req.Encode()
	if err != nil {
		return err
	}

	ss := &sendState{
		method:    req.Method,
		expect100: req.Expect100,
		head:      head,
		bodyMode:  req.Mode,
	}
	if req.Mode == request.FixedLength {
		ss.bodyRemaining = req.ContentLength
		if req.Body != nil {
			ss.bodyRemaining = int64(len(req.Body))
		}
	}
	if req.Expect100 {
		ss.awaitingContinue = true
	}
	c.pendingSend = append(c.pendingSend, ss)
	c.pendingRecv = append(c.pendingRecv, &recvState{
		method: req.Method,
		parser: response.NewParser(req.Method),
	})

	if req.Mode == request.FixedLength && req.Body != nil && len(req.Body) > 0 && !req.Expect100 {
		ss.head = append(ss.head, req.Body...)
		ss.bodyRemaining = 0
	}

	return nil
}

// FlushSend writes as many buffered bytes as the socket currently accepts.
// It returns a *suspend.PollNeeded if the socket would block, and nil once
// nothing more can be written now: either everything queued has been
// written, or the oldest request still owes its body or a 100-continue. A
// sendState is popped off the FIFO only once sendComplete reports true —
// not merely once its head bytes are on the wire — so a request with a
// pending 100-continue rendezvous or a not-yet-fully-written body keeps
// blocking the next request's head from going out, per spec.md's
// pipelining ordering rule.
func (c *Connection) FlushSend() (*suspend.PollNeeded, error) {
	for len(c.pendingSend) > 0 {
		ss := c.pendingSend[0]
		for len(ss.head) > 0 {
			n, err := c.conn.Write(ss.head)
			if poll, ok := err.(*suspend.PollNeeded); ok {
				return poll, nil
			}
			if err != nil {
				return nil, err
			}
			ss.head = ss.head[n:]
		}
		if !ss.sendComplete() {
			return nil, nil
		}
		c.pendingSend = c.pendingSend[1:]
	}
	return nil, nil
}

// Write sends body bytes for the oldest request still owed one, enforcing
// spec.md's ExcessBodyData invariant: writing past a FixedLength request's
// declared Content-Length is a caller error, not silently truncated or
// merged into the next request. It also enforces the Expect:100-continue
// rendezvous: a request that set Expect100 must not have its body written
// before ReadResponse has observed the interim 100 response.
func (c *Connection) Write(p []byte) (int, *suspend.PollNeeded, error) {
	if len(c.pendingSend) == 0 {
		return 0, nil, httperr.NewStateError("Write called with no request awaiting a body")
	}
	ss := c.pendingSend[0]
	if ss.bodyMode == request.NoBody {
		return 0, nil, httperr.NewStateError("Write called on a request with no declared body")
	}
	if ss.awaitingContinue {
		return 0, nil, httperr.NewStateError("Write called before the 100-continue rendezvous completed")
	}
	if ss.bodyMode == request.FixedLength {
		if int64(len(p)) > ss.bodyRemaining {
			return 0, nil, httperr.NewExcessBodyData(fmt.Sprintf("wrote %d bytes, only %d remained", len(p), ss.bodyRemaining))
		}
	}

	n, err := c.conn.Write(p)
	if poll, ok := err.(*suspend.PollNeeded); ok {
		return n, poll, nil
	}
	if err != nil {
		return n, nil, err
	}

	if ss.bodyMode == request.FixedLength {
		ss.bodyRemaining -= int64(n)
	}
	return n, nil, nil
}

// WriteChunk writes one chunked-encoding frame of body data for the oldest
// pending request. Pass an empty final chunk (data == nil) to terminate the
// body; trailers may be supplied with the final call. A frame only partly
// accepted by the socket is remembered on the sendState so a retried call
// resumes the same frame rather than re-encoding (and so duplicating) it.
func (c *Connection) WriteChunk(data []byte, trailers map[string]string) (*suspend.PollNeeded, error) {
	if len(c.pendingSend) == 0 {
		return nil, httperr.NewStateError("WriteChunk called with no request awaiting a body")
	}
	ss := c.pendingSend[0]
	if ss.bodyMode != request.Chunked {
		return nil, httperr.NewStateError("WriteChunk called on a non-chunked request")
	}
	if ss.awaitingContinue {
		return nil, httperr.NewStateError("WriteChunk called before the 100-continue rendezvous completed")
	}

	if ss.pendingChunk == nil {
		if data == nil {
			ss.pendingChunk = chunked.EncodeWithTrailers(nil, 0, trailers)
			ss.pendingChunkFinal = true
		} else {
			ss.pendingChunk = chunked.Encode(data, len(data))
		}
	}

	for len(ss.pendingChunk) > 0 {
		n, err := c.conn.Write(ss.pendingChunk)
		if poll, ok := err.(*suspend.PollNeeded); ok {
			return poll, nil
		}
		if err != nil {
			return nil, err
		}
		ss.pendingChunk = ss.pendingChunk[n:]
	}

	if ss.pendingChunkFinal {
		ss.chunkedDone = true
	}
	ss.pendingChunk = nil
	ss.pendingChunkFinal = false
	return nil, nil
}

// fill reads more bytes off the wire into recvBuf. ok is false (with no
// error) if the read would block — the caller should suspend. A
// connection-closed error is returned like any other; Read decides via
// isCleanClose whether it ends a FramingUntilClose body.
func (c *Connection) fill() (ok bool, err error) {
	chunk := make([]byte, 16384)
	n, err := c.conn.Read(chunk)
	if poll, isPoll := err.(*suspend.PollNeeded); isPoll {
		_ = poll
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := c.recvBuf.Append(chunk[:n]); err != nil {
		return false, httperr.NewInvalidResponse(err.Error())
	}
	return true, nil
}

// pollForRead returns the PollNeeded a caller should wait on to make
// progress on the receive side.
func (c *Connection) pollForRead() *suspend.PollNeeded {
	return &suspend.PollNeeded{FD: c.conn.FD(), Interest: suspend.Readable}
}
