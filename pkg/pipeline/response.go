package pipeline

import (
	"github.com/WhileEndless/go-httpengine/pkg/httperr"
	"github.com/WhileEndless/go-httpengine/pkg/response"
	"github.com/WhileEndless/go-httpengine/pkg/suspend"
)

// ReadResponse parses the status line and headers of the oldest
// not-yet-fully-read response in the pipeline. It transparently consumes
// and discards 100-continue interim responses for requests that set
// Expect100 — once one arrives, any body write the caller was withholding
// may proceed — and returns the first response whose status is not 100
// (any other 1xx is returned as-is, with no body). This
// mirrors the Python original's read_response loop ("while True: ... if
// status == 100: continue").
//
// A *suspend.PollNeeded return means more bytes are needed from the wire;
// call ReadResponse again after waiting on it.
func (c *Connection) ReadResponse() (*response.Response, *suspend.PollNeeded, error) {
	if len(c.pendingRecv) == 0 {
		return nil, nil, httperr.NewStateError("ReadResponse called with no request pending a response")
	}
	rs := c.pendingRecv[0]

	for {
		if rs.resp == nil {
			resp, ok, err := rs.parser.ParseHead(c.recvBuf)
			if err != nil {
				return nil, nil, err
			}
			if !ok {
				filled, err := c.fill()
				if err != nil {
					return nil, nil, err
				}
				if !filled {
					return nil, c.pollForRead(), nil
				}
				continue
			}
			rs.resp = resp
		}

		if rs.resp.Is100Continue() {
			// Interim response consumed; unblock the matching send-side
			// body if it was waiting on this rendezvous, then reset parser
			// state to await the real final response.
			if len(c.pendingSend) > 0 && c.pendingSend[0].awaitingContinue {
				c.pendingSend[0].awaitingContinue = false
			}
			rs.resp = nil
			rs.parser = response.NewParser(rs.method)
			continue
		}

		rs.sawFinal = !rs.resp.IsInformational()
		if rs.body == nil {
			rs.body = response.NewBodyReader(rs.resp)
		}
		return rs.resp, nil, nil
	}
}

// AwaitingContinue reports whether the oldest unfinished send is a request
// that sent Expect: 100-continue and is still waiting for the server's
// interim response before its body may be written.
func (c *Connection) AwaitingContinue() bool {
	return len(c.pendingSend) > 0 && c.pendingSend[0].awaitingContinue
}

// Read delivers up to len(p) bytes of the current response's body into p,
// pulling more bytes off the wire as needed. n may be less than len(p) even
// without completing the body. done is true once the full body (per its
// framing discipline) has been delivered, at which point the response is
// popped off the pending FIFO.
func (c *Connection) Read(p []byte) (n int, done bool, poll *suspend.PollNeeded, err error) {
	if len(c.pendingRecv) == 0 {
		return 0, false, nil, httperr.NewStateError("Read called with no response in progress")
	}
	rs := c.pendingRecv[0]
	if rs.body == nil {
		return 0, false, nil, httperr.NewStateError("Read called before the response head has been parsed")
	}

	for {
		out, ok, derr := rs.body.Read(c.recvBuf, nil, len(p))
		if derr != nil {
			return 0, false, nil, derr
		}
		if len(out) > 0 {
			n = copy(p, out)
			if !ok {
				return n, false, nil, nil
			}
			c.finishResponse()
			return n, true, nil, nil
		}
		if ok {
			c.finishResponse()
			return 0, true, nil, nil
		}

		filled, ferr := c.fill()
		if ferr != nil {
			if rs.body.Done() || isCleanClose(rs, ferr) {
				rs.body.MarkClosed()
				c.finishResponse()
				return 0, true, nil, nil
			}
			return 0, false, nil, ferr
		}
		if !filled {
			return 0, false, c.pollForRead(), nil
		}
	}
}

// ReadAll reads the remainder of the current response body to completion,
// applying AutoDecompress if configured. It suspends (returning a non-nil
// PollNeeded) exactly like Read, rather than blocking.
func (c *Connection) ReadAll() ([]byte, *suspend.PollNeeded, error) {
	var encoding string
	var hasEncoding bool
	if len(c.pendingRecv) > 0 && c.pendingRecv[0].resp != nil {
		encoding, hasEncoding = c.pendingRecv[0].resp.Headers.Get("Content-Encoding")
	}

	var all []byte
	buf := make([]byte, 16384)
	for {
		n, done, poll, err := c.Read(buf)
		if err != nil {
			return nil, nil, err
		}
		if poll != nil {
			return nil, poll, nil
		}
		all = append(all, buf[:n]...)
		if done {
			if c.config.AutoDecompress && hasEncoding {
				decoded, derr := c.decompress(all, encoding)
				if derr != nil {
					return nil, nil, derr
				}
				return decoded, nil, nil
			}
			return all, nil, nil
		}
	}
}

// finishResponse pops the completed response off pendingRecv and compacts
// recvBuf, reclaiming the bytes the finished head and body occupied. It
// does not touch pendingSend: that FIFO is popped independently by
// FlushSend once a request's own send side (head, body, and any
// 100-continue rendezvous) is actually complete, which is not guaranteed to
// coincide with its response finishing.
func (c *Connection) finishResponse() {
	if len(c.pendingRecv) > 0 {
		c.pendingRecv = c.pendingRecv[1:]
	}
	c.recvBuf.Compact()
}

func isCleanClose(rs *recvState, err error) bool {
	kind, ok := httperr.KindOf(err)
	return ok && kind == httperr.KindConnectionClosed && rs.body != nil &&
		rs.resp != nil && rs.resp.Framing == response.FramingUntilClose
}
