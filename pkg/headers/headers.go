// Package headers implements the case-insensitive, order-preserving header
// multimap shared by the request encoder and the response parser. An
// earlier map-backed design claimed duplicate support via Add but silently
// collapsed repeats to a single map slot; this is a true multimap over a
// slice instead, with field-value validation and singleton-header
// enforcement for Content-Length/Transfer-Encoding/Expect/Host.
package headers

import (
	"fmt"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// Header is a single name/value pair, order as received or inserted.
type Header struct {
	Name  string
	Value string
}

// singletons lists header fields that may appear at most once in a well
// formed message; a second occurrence is a construction-time error rather
// than something silently overwritten or merged.
var singletons = map[string]bool{
	"content-length":    true,
	"transfer-encoding": true,
	"expect":            true,
	"host":              true,
}

// List is an ordered multimap of headers. Lookups are case-insensitive;
// insertion order and duplicate entries (e.g. repeated Set-Cookie) are
// preserved exactly.
type List struct {
	entries []Header
}

// New returns an empty header list.
func New() *List {
	return &List{}
}

// Add appends a header, enforcing the latin-1/CR/LF/NUL and singleton rules.
// A second Add of a singleton field returns an error instead of being
// silently accepted.
func (l *List) Add(name, value string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := validateValue(value); err != nil {
		return err
	}
	lower := strings.ToLower(name)
	if singletons[lower] && l.Has(name) {
		return fmt.Errorf("headers: %q may appear at most once", name)
	}
	l.entries = append(l.entries, Header{Name: name, Value: value})
	return nil
}

// Set replaces all existing occurrences of name with a single new entry,
// preserving the position of the first existing occurrence if any.
func (l *List) Set(name, value string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := validateValue(value); err != nil {
		return err
	}
	lower := strings.ToLower(name)
	for i, h := range l.entries {
		if strings.EqualFold(h.Name, lower) || strings.ToLower(h.Name) == lower {
			l.entries[i] = Header{Name: name, Value: value}
			l.removeAllExcept(lower, i)
			return nil
		}
	}
	l.entries = append(l.entries, Header{Name: name, Value: value})
	return nil
}

func (l *List) removeAllExcept(lower string, keepIdx int) {
	out := l.entries[:0:0]
	for i, h := range l.entries {
		if i == keepIdx || strings.ToLower(h.Name) != lower {
			out = append(out, h)
		}
	}
	l.entries = out
}

// Get returns the first value for name, and whether it was present.
func (l *List) Get(name string) (string, bool) {
	lower := strings.ToLower(name)
	for _, h := range l.entries {
		if strings.ToLower(h.Name) == lower {
			return h.Value, true
		}
	}
	return "", false
}

// GetAll returns every value for name, in insertion order.
func (l *List) GetAll(name string) []string {
	lower := strings.ToLower(name)
	var out []string
	for _, h := range l.entries {
		if strings.ToLower(h.Name) == lower {
			out = append(out, h.Value)
		}
	}
	return out
}

// Has reports whether name occurs at least once.
func (l *List) Has(name string) bool {
	_, ok := l.Get(name)
	return ok
}

// Del removes every occurrence of name.
func (l *List) Del(name string) {
	lower := strings.ToLower(name)
	out := l.entries[:0:0]
	for _, h := range l.entries {
		if strings.ToLower(h.Name) != lower {
			out = append(out, h)
		}
	}
	l.entries = out
}

// All returns every header in insertion order. The returned slice must not
// be mutated by the caller.
func (l *List) All() []Header {
	return l.entries
}

// Len returns the number of header entries, including duplicates.
func (l *List) Len() int {
	return len(l.entries)
}

// Build serializes the headers wire-format, one "Name: Value\r\n" line per
// entry in insertion order, without a trailing blank line.
func (l *List) Build() []byte {
	var buf strings.Builder
	for _, h := range l.entries {
		buf.WriteString(h.Name)
		buf.WriteString(": ")
		buf.WriteString(h.Value)
		buf.WriteString("\r\n")
	}
	return []byte(buf.String())
}

// Merge appends another list's entries onto this one, applying the same
// validation and singleton rules as Add. The response path does not call it:
// trailers of a chunked body stay on response.BodyReader.Trailers and are not
// added to the response's header list.
func (l *List) Merge(other *List) error {
	for _, h := range other.All() {
		if err := l.Add(h.Name, h.Value); err != nil {
			return err
		}
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("headers: empty header name")
	}
	if !httpguts.ValidHeaderFieldName(name) {
		return fmt.Errorf("headers: invalid header field name %q", name)
	}
	return nil
}

func validateValue(value string) error {
	if !httpguts.ValidHeaderFieldValue(value) {
		return fmt.Errorf("headers: invalid header field value for value %q", value)
	}
	for i := 0; i < len(value); i++ {
		c := value[i]
		if c == 0 || c == '\r' || c == '\n' {
			return fmt.Errorf("headers: control byte in header value")
		}
		if c > 0x7e && c < 0xa0 {
			return fmt.Errorf("headers: non-latin-1 byte in header value")
		}
	}
	return nil
}

// ParseLine splits a single "Name: Value" wire line (without its line
// terminator) into a name and value, trimming optional whitespace around the
// value per RFC 7230 §3.2. Returns an error if there is no colon.
func ParseLine(line string) (name, value string, err error) {
	colon := strings.IndexByte(line, ':')
	if colon < 0 {
		return "", "", fmt.Errorf("headers: malformed header line %q", line)
	}
	name = line[:colon]
	if strings.ContainsAny(name, " \t") {
		return "", "", fmt.Errorf("headers: whitespace before colon in header name %q", name)
	}
	value = strings.Trim(line[colon+1:], " \t")
	return name, value, nil
}
