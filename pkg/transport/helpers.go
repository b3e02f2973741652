package transport

import (
	"bytes"
	"errors"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// writeAllBlocking is used only for the pre-handshake CONNECT exchange,
// where retrying on EAGAIN inline (rather than surfacing a PollNeeded) is
// simplest: the tunnel setup happens once, synchronously, before the
// connection is handed to the suspension-driven pipeline.
func (c *Conn) writeAllBlocking(p []byte) error {
	for len(p) > 0 {
		n, err := unix.Write(c.fd, p)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				continue
			}
			return err
		}
		p = p[n:]
	}
	return nil
}

func (c *Conn) readUntilHeadersEndBlocking() ([]byte, error) {
	var buf bytes.Buffer
	chunk := make([]byte, 4096)
	for {
		if idx := bytes.Index(buf.Bytes(), []byte("\r\n\r\n")); idx >= 0 {
			return buf.Bytes()[:idx], nil
		}
		n, err := unix.Read(c.fd, chunk)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				continue
			}
			return nil, err
		}
		if n == 0 {
			return nil, errors.New("transport: proxy closed connection during CONNECT")
		}
		buf.Write(chunk[:n])
	}
}

func isSuccessfulConnect(resp []byte) bool {
	line := firstLine(resp)
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return false
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return false
	}
	return code >= 200 && code < 300
}

func firstLine(b []byte) string {
	if idx := bytes.IndexByte(b, '\n'); idx >= 0 {
		return strings.TrimRight(string(b[:idx]), "\r")
	}
	return string(b)
}

