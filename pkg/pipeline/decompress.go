package pipeline

import (
	"github.com/WhileEndless/go-httpengine/pkg/compression"
)

// decompress runs opt-in response body decompression over a fully
// assembled body, per SPEC_FULL.md's "SUPPLEMENTED FEATURE: opt-in response
// body decompression". It only ever runs over ReadAll's buffered result —
// the streaming Read path never touches this, so the byte-accounting
// invariants of the raw wire stream hold regardless of Config.AutoDecompress.
func (c *Connection) decompress(body []byte, contentEncoding string) ([]byte, error) {
	ctype := compression.DetectCompression(contentEncoding)
	if ctype == compression.CompressionNone {
		return body, nil
	}
	return compression.Decompress(body, ctype)
}
