package headers

import "testing"

func TestAdd_PreservesOrderAndDuplicates(t *testing.T) {
	l := New()
	must(t, l.Add("Set-Cookie", "a=1"))
	must(t, l.Add("Set-Cookie", "b=2"))
	must(t, l.Add("Content-Type", "text/plain"))

	all := l.GetAll("Set-Cookie")
	if len(all) != 2 || all[0] != "a=1" || all[1] != "b=2" {
		t.Fatalf("expected both Set-Cookie values preserved in order, got %v", all)
	}
	if l.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", l.Len())
	}
}

func TestAdd_RejectsSecondSingleton(t *testing.T) {
	l := New()
	must(t, l.Add("Content-Length", "5"))
	if err := l.Add("Content-Length", "6"); err == nil {
		t.Fatal("expected an error adding a second Content-Length")
	}
}

func TestAdd_RejectsControlBytes(t *testing.T) {
	l := New()
	if err := l.Add("X-Test", "bad\r\nvalue"); err == nil {
		t.Fatal("expected an error for a CRLF-containing header value")
	}
	if err := l.Add("X-Bad\nName", "value"); err == nil {
		t.Fatal("expected an error for a header name containing a newline")
	}
}

func TestSet_ReplacesAllOccurrences(t *testing.T) {
	l := New()
	must(t, l.Add("X-Custom", "one"))
	must(t, l.Set("X-Custom", "two"))
	if got := l.GetAll("X-Custom"); len(got) != 1 || got[0] != "two" {
		t.Fatalf("expected Set to collapse to a single value, got %v", got)
	}
}

func TestBuild_WireFormat(t *testing.T) {
	l := New()
	must(t, l.Add("Host", "example.com"))
	must(t, l.Add("Accept", "*/*"))

	want := "Host: example.com\r\nAccept: */*\r\n"
	if got := string(l.Build()); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestParseLine(t *testing.T) {
	name, value, err := ParseLine("Content-Type:   text/html ")
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if name != "Content-Type" || value != "text/html" {
		t.Fatalf("expected name=Content-Type value=text/html, got name=%q value=%q", name, value)
	}

	if _, _, err := ParseLine("no colon here"); err == nil {
		t.Fatal("expected an error for a line without a colon")
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
