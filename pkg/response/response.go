// Package response implements the incremental Response Parser: a
// phase-by-phase state machine (status line -> header block -> body) that
// can suspend at any phase boundary when the transport has no more bytes
// buffered, rather than requiring a complete response in memory up front.
// Its status-line/header/body-framing logic follows the same dispatch
// table as the original read_response implementation it is descended from.
package response

import (
	"strconv"

	"github.com/WhileEndless/go-httpengine/pkg/cookies"
	"github.com/WhileEndless/go-httpengine/pkg/headers"
)

// Framing is how the entity body (if any) is delimited on the wire.
type Framing int

const (
	// FramingNone means the response has no body at all (HEAD, 1xx, 204,
	// 304), regardless of any Content-Length the peer sent.
	FramingNone Framing = iota
	// FramingFixedLength means the body is exactly ContentLength bytes.
	FramingFixedLength
	// FramingChunked means the body uses chunked transfer-coding.
	FramingChunked
	// FramingUntilClose means the body continues until the connection
	// closes; its length is unknown in advance.
	FramingUntilClose
)

// Response is the parsed status line, headers, and framing decision for one
// response. The body itself is delivered separately via the parser's
// incremental Read, not buffered onto this struct, so a caller can stream
// arbitrarily large bodies.
type Response struct {
	StatusCode int
	Reason     string
	Headers    *headers.List
	Framing    Framing
	ContentLength int64 // meaningful only when Framing == FramingFixedLength
}

// IsInformational reports whether this is a 1xx interim response (including
// the 100-continue rendezvous response).
func (r *Response) IsInformational() bool {
	return r.StatusCode >= 100 && r.StatusCode < 200
}

// Is100Continue reports whether this is exactly the 100-continue interim
// response the Expect handshake waits for.
func (r *Response) Is100Continue() bool {
	return r.StatusCode == 100
}

// SetCookies decodes every Set-Cookie header present, in header order. This
// is read-only sugar over the Header Model (spec.md's Header Model already
// preserves Set-Cookie as an ordered duplicate-permitting field); it does
// not change what the headers themselves report.
func (r *Response) SetCookies() []cookies.ResponseCookie {
	values := r.Headers.GetAll("Set-Cookie")
	out := make([]cookies.ResponseCookie, 0, len(values))
	for _, v := range values {
		out = append(out, cookies.ParseSetCookie(v))
	}
	return out
}

// contentLengthHeader parses the Content-Length header value, returning
// ok=false if absent or unparsable.
func contentLengthHeader(h *headers.List) (int64, bool) {
	v, ok := h.Get("Content-Length")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
