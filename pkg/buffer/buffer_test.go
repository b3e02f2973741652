package buffer

import "testing"

func TestConsumeLine_WaitsForFullLine(t *testing.T) {
	b := New(0)
	b.Append([]byte("GET / HTTP/1.1\r\n"))

	line, ok := b.ConsumeLine()
	if !ok {
		t.Fatal("expected a full line to be available")
	}
	if string(line) != "GET / HTTP/1.1" {
		t.Fatalf("expected line without CRLF, got %q", line)
	}
	if b.Len() != 0 {
		t.Fatalf("expected buffer fully consumed, got %d bytes left", b.Len())
	}
}

func TestConsumeLine_IncompleteLineSuspends(t *testing.T) {
	b := New(0)
	b.Append([]byte("partial"))
	if _, ok := b.ConsumeLine(); ok {
		t.Fatal("expected ConsumeLine to report no full line yet")
	}
}

func TestAppend_RejectsOverLimit(t *testing.T) {
	b := New(4)
	if err := b.Append([]byte("12345")); err == nil {
		t.Fatal("expected an error exceeding the configured max")
	}
}

func TestCompact_ReclaimsConsumedSpace(t *testing.T) {
	b := New(0)
	b.Append([]byte("AAAA\nBBBB"))
	b.ConsumeLine()
	b.Compact()
	if string(b.Bytes()) != "BBBB" {
		t.Fatalf("expected %q after compact, got %q", "BBBB", b.Bytes())
	}
}

func TestConsume_PanicsPastAvailable(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected Consume past available data to panic")
		}
	}()
	b := New(0)
	b.Append([]byte("ab"))
	b.Consume(5)
}
