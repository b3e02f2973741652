package response

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/WhileEndless/go-httpengine/pkg/buffer"
	"github.com/WhileEndless/go-httpengine/pkg/chunked"
	"github.com/WhileEndless/go-httpengine/pkg/headers"
	"github.com/WhileEndless/go-httpengine/pkg/httperr"
)

type parsePhase int

const (
	phaseStatusLine parsePhase = iota
	phaseHeaders
	phaseDone
)

// Parser incrementally parses one response (status line, headers, and
// framing decision) from a buffer.Buffer, suspending whenever it needs more
// bytes than are currently available. It does not read the body itself —
// callers use NewBodyReader once ParseHead reports completion.
type Parser struct {
	phase         parsePhase
	requestMethod string // "HEAD" suppresses any body regardless of framing headers
	resp          *Response

	// pending holds an obs-folded logical header line being assembled across
	// possibly many physical lines; nil when nothing is in progress. Both
	// fields survive a suspend (a ConsumeLine that returns !ok), so resuming
	// never loses partial fold state or misreads a line twice.
	pending    []byte
	stashedRaw []byte // a physical line already read off b but not yet classified
	hasStashed bool
}

// NewParser returns a Parser for the response to a request issued with
// requestMethod, which affects the no-body dispatch rule (HEAD never has a
// response body).
func NewParser(requestMethod string) *Parser {
	return &Parser{requestMethod: strings.ToUpper(requestMethod), resp: &Response{Headers: headers.New()}}
}

// ParseHead consumes as much of the status line and header block as is
// currently buffered. ok is true once the full head (through the blank line
// terminating the headers) has been parsed and the framing decision made;
// ok is false if b needs more bytes first.
func (p *Parser) ParseHead(b *buffer.Buffer) (resp *Response, ok bool, err error) {
	for p.phase != phaseDone {
		switch p.phase {
		case phaseStatusLine:
			line, have := b.ConsumeLine()
			if !have {
				if b.ExceedsMaxLine() {
					return nil, false, httperr.NewInvalidResponse("status line exceeds the maximum line length")
				}
				return nil, false, nil
			}
			if err := p.parseStatusLine(string(line)); err != nil {
				return nil, false, err
			}
			p.phase = phaseHeaders

		case phaseHeaders:
			line, have := p.consumeHeaderLine(b)
			if !have {
				if b.ExceedsMaxLine() {
					return nil, false, httperr.NewInvalidResponse("header line exceeds the maximum line length")
				}
				return nil, false, nil
			}
			if len(line) == 0 {
				if err := p.decideFraming(); err != nil {
					return nil, false, err
				}
				p.phase = phaseDone
				return p.resp, true, nil
			}
			name, value, perr := headers.ParseLine(string(line))
			if perr != nil {
				return nil, false, httperr.NewInvalidResponse(perr.Error())
			}
			if err := p.resp.Headers.Add(name, value); err != nil {
				return nil, false, httperr.NewInvalidResponse(err.Error())
			}
		}
	}
	return p.resp, true, nil
}

// consumeHeaderLine reads one logical header line, folding any obs-fold
// continuation lines (RFC 7230 §3.2.4: a line beginning with SP or HTAB)
// into the preceding value with a single space, per spec.md §4.5. have is
// false if the buffer doesn't yet hold a complete logical line — which may
// mean either the current physical line, or a continuation it's waiting on,
// hasn't arrived yet.
//
// A physical line can only be classified as "not a continuation" once the
// line after it has been read, and buffer.Buffer.ConsumeLine cannot be
// un-read — so a line read purely to check whether it continues the fold,
// and found not to, is kept in p.stashedRaw and classified first on the
// next call instead of being consumed twice or dropped on a suspend.
func (p *Parser) consumeHeaderLine(b *buffer.Buffer) (line []byte, have bool) {
	for {
		var raw []byte
		if p.hasStashed {
			raw = p.stashedRaw
			p.stashedRaw = nil
			p.hasStashed = false
		} else {
			r, ok := b.ConsumeLine()
			if !ok {
				return nil, false
			}
			raw = r
		}

		if p.pending == nil {
			if len(raw) == 0 {
				return raw, true
			}
			p.pending = append([]byte(nil), raw...)
			continue
		}

		if len(raw) > 0 && (raw[0] == ' ' || raw[0] == '\t') {
			p.pending = append(p.pending, ' ')
			p.pending = append(p.pending, bytesTrimLeadingWS(raw)...)
			continue
		}

		finished := p.pending
		p.pending = nil
		p.stashedRaw = raw
		p.hasStashed = true
		return finished, true
	}
}

func bytesTrimLeadingWS(b []byte) []byte {
	i := 0
	for i < len(b) && (b[i] == ' ' || b[i] == '\t') {
		i++
	}
	return b[i:]
}

// parseStatusLine accepts "HTTP/1.1 200 OK" and tolerates a missing reason
// phrase, but rejects anything that isn't exactly HTTP/1.1 — HTTP/1.0 and
// HTTP/0.9 are unsupported, not merely downgraded.
func (p *Parser) parseStatusLine(line string) error {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return httperr.NewInvalidResponse(fmt.Sprintf("malformed status line %q", line))
	}
	if parts[0] != "HTTP/1.1" {
		return httperr.NewUnsupportedResponse(fmt.Sprintf("unsupported protocol version %q", parts[0]))
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil || code < 100 || code > 599 {
		return httperr.NewInvalidResponse(fmt.Sprintf("invalid status code %q", parts[1]))
	}
	p.resp.StatusCode = code
	if len(parts) == 3 {
		p.resp.Reason = parts[2]
	}
	return nil
}

// decideFraming implements the body-framing dispatch table: no body for
// HEAD/1xx/204/304, chunked if Transfer-Encoding names it, fixed-length if
// Content-Length is present, until-close if Connection: close is present,
// otherwise UnsupportedResponse — a response with no Content-Length, no
// chunked Transfer-Encoding, and no Connection: close gives no way to know
// where its body ends, so it can't be framed at all. Follows the same
// dispatch order as the original read_response's framing decision.
func (p *Parser) decideFraming() error {
	r := p.resp

	if p.requestMethod == "HEAD" || r.IsInformational() || r.StatusCode == 204 || r.StatusCode == 304 {
		r.Framing = FramingNone
		return nil
	}

	te, hasTE := r.Headers.Get("Transfer-Encoding")
	if hasTE {
		if !strings.EqualFold(strings.TrimSpace(lastCommaToken(te)), "chunked") {
			return httperr.NewUnsupportedResponse(fmt.Sprintf("unsupported Transfer-Encoding %q", te))
		}
		r.Framing = FramingChunked
		return nil
	}

	if cl, ok := contentLengthHeader(r.Headers); ok {
		r.Framing = FramingFixedLength
		r.ContentLength = cl
		return nil
	}

	if conn, ok := r.Headers.Get("Connection"); ok && hasCommaToken(conn, "close") {
		r.Framing = FramingUntilClose
		return nil
	}

	return httperr.NewUnsupportedResponse("response has neither Content-Length, chunked Transfer-Encoding, nor Connection: close to frame its body")
}

func lastCommaToken(s string) string {
	idx := strings.LastIndexByte(s, ',')
	if idx < 0 {
		return s
	}
	return s[idx+1:]
}

// hasCommaToken reports whether any comma-separated, whitespace-trimmed
// token in s equals tok, case-insensitively.
func hasCommaToken(s, tok string) bool {
	for _, part := range strings.Split(s, ",") {
		if strings.EqualFold(strings.TrimSpace(part), tok) {
			return true
		}
	}
	return false
}

// BodyReader incrementally delivers a response body already framed by
// ParseHead, handling all three disciplines (fixed-length, chunked,
// until-close) behind one interface.
type BodyReader struct {
	framing   Framing
	remaining int64 // for FramingFixedLength
	decoder   *chunked.Decoder
	done      bool
}

// NewBodyReader constructs the appropriate body-reading strategy for resp.
func NewBodyReader(resp *Response) *BodyReader {
	br := &BodyReader{framing: resp.Framing}
	switch resp.Framing {
	case FramingNone:
		br.done = true
	case FramingFixedLength:
		br.remaining = resp.ContentLength
		br.done = br.remaining == 0
	case FramingChunked:
		br.decoder = chunked.NewDecoder()
	case FramingUntilClose:
		// done becomes true only when the transport reports connection closed.
	}
	return br
}

// Done reports whether the body has been fully delivered (for FramingNone
// and FramingChunked/FramingFixedLength once all bytes are consumed).
// Always false for FramingUntilClose until the caller calls MarkClosed.
func (br *BodyReader) Done() bool { return br.done }

// Trailers returns the decoded trailer fields for a chunked body (empty
// until the terminating chunk has been parsed).
func (br *BodyReader) Trailers() *headers.List {
	if br.decoder != nil {
		return br.decoder.Trailers
	}
	return headers.New()
}

// Read consumes body data currently buffered in b, appending it to out,
// without consuming more than maxBytes of body data in this call (maxBytes
// <= 0 means unlimited — consume everything currently buffered). ok is true
// once the body is fully delivered per its framing discipline.
func (br *BodyReader) Read(b *buffer.Buffer, out []byte, maxBytes int) (result []byte, ok bool, err error) {
	if br.done {
		return out, true, nil
	}

	switch br.framing {
	case FramingFixedLength:
		avail := int64(b.Len())
		if avail == 0 {
			return out, false, nil
		}
		take := br.remaining
		if avail < take {
			take = avail
		}
		if maxBytes > 0 && take > int64(maxBytes) {
			take = int64(maxBytes)
		}
		out = append(out, b.Consume(int(take))...)
		br.remaining -= take
		br.done = br.remaining == 0
		return out, br.done, nil

	case FramingChunked:
		out, done, err := br.decoder.Decode(b, out, maxBytes)
		if err != nil {
			return out, false, httperr.NewInvalidResponse(err.Error())
		}
		br.done = done
		return out, done, nil

	case FramingUntilClose:
		n := b.Len()
		if maxBytes > 0 && n > maxBytes {
			n = maxBytes
		}
		if n == 0 {
			return out, false, nil
		}
		out = append(out, b.Consume(n)...)
		return out, false, nil

	default:
		return out, true, nil
	}
}

// MarkClosed tells an until-close BodyReader that the transport has
// reported connection closed, which for this framing discipline is the
// normal, successful end of the body rather than an error.
func (br *BodyReader) MarkClosed() {
	if br.framing == FramingUntilClose {
		br.done = true
	}
}
