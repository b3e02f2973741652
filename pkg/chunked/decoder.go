package chunked

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/WhileEndless/go-httpengine/pkg/buffer"
	"github.com/WhileEndless/go-httpengine/pkg/headers"
)

type decoderState int

const (
	stateSize decoderState = iota
	stateData
	stateDataCRLF
	stateTrailer
	stateDone
)

// Decoder incrementally decodes a chunked body read off a buffer.Buffer. It
// never holds more than one chunk's remaining bytes of pending state, so it
// can be driven across arbitrarily many suspend/resume cycles as more bytes
// arrive on the wire, rather than requiring the whole chunked blob up front.
type Decoder struct {
	state      decoderState
	remaining  int64 // bytes left in the current chunk's data
	Trailers   *headers.List
}

// NewDecoder returns a Decoder ready to consume the first chunk-size line.
func NewDecoder() *Decoder {
	return &Decoder{state: stateSize, Trailers: headers.New()}
}

// Done reports whether the terminating chunk and any trailers have been
// fully consumed.
func (d *Decoder) Done() bool {
	return d.state == stateDone
}

// Decode consumes as much of the chunked stream as is currently buffered in
// b, appending decoded body bytes to out, without ever consuming more than
// maxBytes of body data in this call (maxBytes <= 0 means unlimited) — this
// bounds a single call to the size of the caller's read buffer. It returns
// the (possibly grown) out slice and ok=false when it needs more input than
// b currently holds, or has hit maxBytes with the body not yet finished;
// the caller should suspend for more I/O (or just call again for more
// budget) and call Decode again.
func (d *Decoder) Decode(b *buffer.Buffer, out []byte, maxBytes int) (result []byte, ok bool, err error) {
	produced := 0
	for {
		switch d.state {
		case stateSize:
			line, have := b.ConsumeLine()
			if !have {
				if b.ExceedsMaxLine() {
					return out, false, fmt.Errorf("chunked: chunk-size line exceeds the maximum line length")
				}
				return out, false, nil
			}
			size, err := parseChunkSizeLine(string(line))
			if err != nil {
				return out, false, fmt.Errorf("chunked: %w", err)
			}
			if size == 0 {
				d.state = stateTrailer
				continue
			}
			d.remaining = size
			d.state = stateData

		case stateData:
			if d.remaining == 0 {
				d.state = stateDataCRLF
				continue
			}
			if maxBytes > 0 && produced >= maxBytes {
				return out, false, nil
			}
			avail := int64(b.Len())
			if avail == 0 {
				return out, false, nil
			}
			take := d.remaining
			if avail < take {
				take = avail
			}
			if maxBytes > 0 {
				budget := int64(maxBytes - produced)
				if take > budget {
					take = budget
				}
			}
			out = append(out, b.Consume(int(take))...)
			produced += int(take)
			d.remaining -= take
			if d.remaining > 0 {
				return out, false, nil
			}
			d.state = stateDataCRLF

		case stateDataCRLF:
			line, have := b.ConsumeLine()
			if !have {
				return out, false, nil
			}
			if len(line) != 0 {
				return out, false, fmt.Errorf("chunked: expected CRLF after chunk data, got %q", line)
			}
			d.state = stateSize

		case stateTrailer:
			line, have := b.ConsumeLine()
			if !have {
				return out, false, nil
			}
			if len(line) == 0 {
				d.state = stateDone
				return out, true, nil
			}
			name, value, perr := headers.ParseLine(string(line))
			if perr != nil {
				return out, false, fmt.Errorf("chunked: malformed trailer: %w", perr)
			}
			if err := d.Trailers.Add(name, value); err != nil {
				return out, false, fmt.Errorf("chunked: %w", err)
			}

		case stateDone:
			return out, true, nil
		}
	}
}

func parseChunkSizeLine(line string) (int64, error) {
	if idx := strings.IndexByte(line, ';'); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimSpace(line)
	size, err := strconv.ParseInt(line, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chunk size line %q: %w", line, err)
	}
	if size < 0 {
		return 0, fmt.Errorf("negative chunk size %q", line)
	}
	return size, nil
}
