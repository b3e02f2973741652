package cookies

import (
	"strings"
	"testing"
)

func TestParseSetCookie_Simple(t *testing.T) {
	input := "session=abc123"
	cookie := ParseSetCookie(input)

	if cookie.Name != "session" {
		t.Errorf("Expected name=session, got %s", cookie.Name)
	}
	if cookie.Value != "abc123" {
		t.Errorf("Expected value=abc123, got %s", cookie.Value)
	}
	if cookie.Raw != input {
		t.Errorf("Expected Raw to be preserved")
	}
}

func TestParseSetCookie_WithAttributes(t *testing.T) {
	input := "id=a3fWa; Expires=Wed, 21 Oct 2025 07:28:00 GMT; Path=/; Domain=.example.com; Secure; HttpOnly"
	cookie := ParseSetCookie(input)

	if cookie.Name != "id" {
		t.Errorf("Expected name=id, got %s", cookie.Name)
	}
	if cookie.Value != "a3fWa" {
		t.Errorf("Expected value=a3fWa, got %s", cookie.Value)
	}
	if cookie.Path != "/" {
		t.Errorf("Expected Path=/, got %s", cookie.Path)
	}
	if cookie.Domain != ".example.com" {
		t.Errorf("Expected Domain=.example.com, got %s", cookie.Domain)
	}
	if !cookie.Secure {
		t.Error("Expected Secure=true")
	}
	if !cookie.HttpOnly {
		t.Error("Expected HttpOnly=true")
	}
	if cookie.Expires == "" {
		t.Error("Expected Expires to be set")
	}
}

func TestParseSetCookie_MaxAge(t *testing.T) {
	cookie := ParseSetCookie("token=xyz; Max-Age=3600")
	if cookie.MaxAge != 3600 {
		t.Errorf("Expected MaxAge=3600, got %d", cookie.MaxAge)
	}
}

func TestParseSetCookie_SameSite(t *testing.T) {
	testCases := []struct{ input, expected string }{
		{"session=abc; SameSite=Strict", "Strict"},
		{"session=abc; SameSite=Lax", "Lax"},
		{"session=abc; SameSite=None", "None"},
	}
	for _, tc := range testCases {
		cookie := ParseSetCookie(tc.input)
		if cookie.SameSite != tc.expected {
			t.Errorf("For %q, expected SameSite=%s, got %s", tc.input, tc.expected, cookie.SameSite)
		}
	}
}

func TestParseSetCookie_Empty(t *testing.T) {
	cookie := ParseSetCookie("")
	if cookie.Name != "" {
		t.Errorf("Expected empty name, got %s", cookie.Name)
	}
}

func TestParseSetCookie_Malformed(t *testing.T) {
	malformed := []string{"nocookie", ";;;", "=noname"}
	for _, input := range malformed {
		_ = ParseSetCookie(input) // must not panic
	}
}

func TestResponseCookie_Build(t *testing.T) {
	cookie := ResponseCookie{
		Name: "session", Value: "abc123", Path: "/", Domain: ".example.com",
		MaxAge: 3600, Secure: true, HttpOnly: true, SameSite: "Strict",
	}
	result := cookie.Build()

	for _, want := range []string{"session=abc123", "Path=/", "Domain=.example.com", "Max-Age=3600", "Secure", "HttpOnly", "SameSite=Strict"} {
		if !strings.Contains(result, want) {
			t.Errorf("expected %q to contain %q", result, want)
		}
	}
}

func TestResponseCookie_Build_Minimal(t *testing.T) {
	cookie := ResponseCookie{Name: "token", Value: "xyz"}
	if got, want := cookie.Build(), "token=xyz"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestSetCookieRoundTrip(t *testing.T) {
	testCases := []string{
		"session=abc123",
		"id=a3fWa; Path=/; Secure; HttpOnly",
		"token=xyz; Max-Age=3600; SameSite=Lax",
	}

	for _, original := range testCases {
		originalCookie := ParseSetCookie(original)
		rebuiltCookie := ParseSetCookie(originalCookie.Build())

		if originalCookie.Name != rebuiltCookie.Name {
			t.Errorf("Name mismatch: %s vs %s", originalCookie.Name, rebuiltCookie.Name)
		}
		if originalCookie.Value != rebuiltCookie.Value {
			t.Errorf("Value mismatch: %s vs %s", originalCookie.Value, rebuiltCookie.Value)
		}
		if originalCookie.Path != rebuiltCookie.Path {
			t.Errorf("Path mismatch: %s vs %s", originalCookie.Path, rebuiltCookie.Path)
		}
		if originalCookie.Secure != rebuiltCookie.Secure {
			t.Errorf("Secure mismatch: %v vs %v", originalCookie.Secure, rebuiltCookie.Secure)
		}
		if originalCookie.HttpOnly != rebuiltCookie.HttpOnly {
			t.Errorf("HttpOnly mismatch: %v vs %v", originalCookie.HttpOnly, rebuiltCookie.HttpOnly)
		}
	}
}

func BenchmarkParseSetCookie(b *testing.B) {
	input := "id=a3fWa; Expires=Wed, 21 Oct 2025 07:28:00 GMT; Path=/; Domain=.example.com; Secure; HttpOnly"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ParseSetCookie(input)
	}
}

func BenchmarkResponseCookieBuild(b *testing.B) {
	cookie := ResponseCookie{
		Name: "session", Value: "abc123", Path: "/", Domain: ".example.com",
		MaxAge: 3600, Secure: true, HttpOnly: true,
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cookie.Build()
	}
}
