// Package chunked implements RFC 7230 §4.1 chunked transfer-coding: an
// incremental decoder that consumes from a buffer.Buffer and can suspend
// mid-chunk, restructured from a whole-blob decode into a cursor-driven
// state machine, and an encoder for outbound request bodies where the whole
// body is already in memory.
package chunked

import (
	"bytes"
	"fmt"
)

// Encode frames data as a single chunk (or series of chunkSize chunks)
// followed by the terminating zero-size chunk. chunkSize <= 0 uses 8192.
func Encode(data []byte, chunkSize int) []byte {
	return EncodeWithTrailers(data, chunkSize, nil)
}

// EncodeWithTrailers is Encode plus a trailer section appended after the
// terminating chunk.
func EncodeWithTrailers(data []byte, chunkSize int, trailers map[string]string) []byte {
	if chunkSize <= 0 {
		chunkSize = 8192
	}

	var result bytes.Buffer
	pos := 0
	for pos < len(data) {
		remaining := len(data) - pos
		n := chunkSize
		if remaining < n {
			n = remaining
		}
		fmt.Fprintf(&result, "%x\r\n", n)
		result.Write(data[pos : pos+n])
		result.WriteString("\r\n")
		pos += n
	}

	result.WriteString("0\r\n")
	for name, value := range trailers {
		fmt.Fprintf(&result, "%s: %s\r\n", name, value)
	}
	result.WriteString("\r\n")

	return result.Bytes()
}
