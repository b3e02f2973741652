// Package buffer implements the bounded contiguous byte buffer the
// incremental parser reads through: a growable-up-to-a-limit read window
// with line- and fixed-length-consumption helpers, so the response parser
// can always ask "do I have a full line / N bytes yet" without re-scanning
// from the start of the connection's lifetime.
package buffer

import (
	"bytes"
	"fmt"
)

// DefaultMax bounds how large a single status-line-or-header buffer is
// allowed to grow before it is treated as a malformed/abusive peer.
const DefaultMax = 64 << 10 // 64 KiB

// DefaultMaxLine bounds a single line (a header field, a status line, a
// chunk-size line) independently of DefaultMax: a peer that never sends a
// terminating LF should be caught well before it's allowed to fill the
// entire buffer with one unterminated line.
const DefaultMaxLine = 8 << 10 // 8 KiB

// Buffer is a single contiguous read window: bytes are appended at the tail
// by the transport layer and consumed from the head by the parser. It never
// shrinks its backing array mid-message; Compact reclaims consumed space
// between messages.
type Buffer struct {
	data    []byte
	off     int // consumed-up-to offset
	max     int
	maxLine int
}

// New returns an empty Buffer that rejects growth past max bytes. max <= 0
// means DefaultMax. The per-line cap defaults to DefaultMaxLine, capped at
// max itself; use SetMaxLine to override it.
func New(max int) *Buffer {
	if max <= 0 {
		max = DefaultMax
	}
	maxLine := DefaultMaxLine
	if maxLine > max {
		maxLine = max
	}
	return &Buffer{max: max, maxLine: maxLine}
}

// SetMaxLine overrides the per-line cap ExceedsMaxLine checks against. n <= 0
// means "no independent per-line cap" (only the whole-buffer max applies).
func (b *Buffer) SetMaxLine(n int) {
	b.maxLine = n
}

// ExceedsMaxLine reports whether the buffered-but-not-yet-terminated bytes
// already exceed the configured per-line cap. A caller waiting on
// ConsumeLine to return ok should check this on every suspend: it means the
// terminator may never arrive within budget and the input should be
// rejected now rather than accumulated all the way to the whole-buffer max.
func (b *Buffer) ExceedsMaxLine() bool {
	return b.maxLine > 0 && b.Len() > b.maxLine
}

// Len returns the number of unconsumed bytes currently buffered.
func (b *Buffer) Len() int {
	return len(b.data) - b.off
}

// Bytes returns the unconsumed bytes. The slice is invalidated by the next
// Append or Compact call.
func (b *Buffer) Bytes() []byte {
	return b.data[b.off:]
}

// Append adds bytes read off the wire to the tail of the buffer. It returns
// an error if doing so would exceed the configured maximum.
func (b *Buffer) Append(p []byte) error {
	if b.Len()+len(p) > b.max {
		return fmt.Errorf("buffer: would exceed %d byte limit", b.max)
	}
	b.data = append(b.data, p...)
	return nil
}

// Consume advances the read cursor past n unconsumed bytes and returns them.
// Panics if n exceeds Len — callers must check Len (or use a Peek helper)
// before consuming.
func (b *Buffer) Consume(n int) []byte {
	if n > b.Len() {
		panic("buffer: consume past available data")
	}
	out := b.data[b.off : b.off+n]
	b.off += n
	return out
}

// ConsumeLine looks for a "\n"-terminated line within the unconsumed bytes
// (tolerating a preceding "\r"), consumes it including the terminator, and
// returns the line content with any trailing "\r\n"/"\n" stripped. ok is
// false if no full line is buffered yet — the caller should suspend for more
// input rather than treating this as an error.
func (b *Buffer) ConsumeLine() (line []byte, ok bool) {
	rest := b.Bytes()
	idx := bytes.IndexByte(rest, '\n')
	if idx < 0 {
		return nil, false
	}
	end := idx
	if end > 0 && rest[end-1] == '\r' {
		end--
	}
	line = rest[:end]
	b.off += idx + 1
	return line, true
}

// HasLine reports whether a full line is currently buffered, without
// consuming it.
func (b *Buffer) HasLine() bool {
	return bytes.IndexByte(b.Bytes(), '\n') >= 0
}

// Compact discards already-consumed bytes from the front of the backing
// array. Call between messages, never mid-parse, since it invalidates
// slices returned by Bytes/Consume/ConsumeLine.
func (b *Buffer) Compact() {
	if b.off == 0 {
		return
	}
	remaining := b.Len()
	copy(b.data[:remaining], b.data[b.off:])
	b.data = b.data[:remaining]
	b.off = 0
}

// Reset empties the buffer entirely.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
	b.off = 0
}
