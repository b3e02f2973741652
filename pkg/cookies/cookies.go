// Package cookies provides read-only Set-Cookie structuring: convenience
// sugar the response descriptor applies on demand over header views the
// Header Model already exposes as raw duplicate entries. The engine has no
// notion of a cookie jar and never sends a Cookie request header on the
// caller's behalf (that policy belongs to the caller), so only the
// response-side Set-Cookie decoder is kept here.
package cookies

import (
	"fmt"
	"strings"
)

// ResponseCookie is a parsed Set-Cookie header.
type ResponseCookie struct {
	Name     string
	Value    string
	Path     string
	Domain   string
	Expires  string
	MaxAge   int
	Secure   bool
	HttpOnly bool
	SameSite string
	Raw      string // original Set-Cookie header value, preserved verbatim
}

// ParseSetCookie parses a single Set-Cookie header value. It never fails —
// malformed attributes are dropped rather than rejected, matching how
// browsers treat cookie parsing as best-effort.
func ParseSetCookie(setCookie string) ResponseCookie {
	cookie := ResponseCookie{Raw: setCookie, MaxAge: -1}
	if setCookie == "" {
		return cookie
	}

	parts := strings.Split(setCookie, ";")

	if len(parts) > 0 {
		firstPart := strings.TrimSpace(parts[0])
		if idx := strings.Index(firstPart, "="); idx != -1 {
			cookie.Name = strings.TrimSpace(firstPart[:idx])
			cookie.Value = strings.TrimSpace(firstPart[idx+1:])
			if len(cookie.Value) >= 2 && cookie.Value[0] == '"' && cookie.Value[len(cookie.Value)-1] == '"' {
				cookie.Value = cookie.Value[1 : len(cookie.Value)-1]
			}
		} else {
			cookie.Name = firstPart
		}
	}

	for i := 1; i < len(parts); i++ {
		attr := strings.TrimSpace(parts[i])
		if attr == "" {
			continue
		}
		if idx := strings.Index(attr, "="); idx != -1 {
			key := strings.ToLower(strings.TrimSpace(attr[:idx]))
			value := strings.TrimSpace(attr[idx+1:])
			switch key {
			case "path":
				cookie.Path = value
			case "domain":
				cookie.Domain = value
			case "expires":
				cookie.Expires = value
			case "max-age":
				var maxAge int
				if _, err := fmt.Sscanf(value, "%d", &maxAge); err == nil {
					cookie.MaxAge = maxAge
				}
			case "samesite":
				cookie.SameSite = value
			}
		} else {
			switch strings.ToLower(attr) {
			case "secure":
				cookie.Secure = true
			case "httponly":
				cookie.HttpOnly = true
			}
		}
	}

	return cookie
}

// Build reconstructs a Set-Cookie header value from its parsed attributes.
func (c *ResponseCookie) Build() string {
	var parts []string

	if c.Name != "" {
		parts = append(parts, c.Name+"="+c.Value)
	}
	if c.Path != "" {
		parts = append(parts, "Path="+c.Path)
	}
	if c.Domain != "" {
		parts = append(parts, "Domain="+c.Domain)
	}
	if c.Expires != "" {
		parts = append(parts, "Expires="+c.Expires)
	}
	if c.MaxAge > 0 {
		parts = append(parts, fmt.Sprintf("Max-Age=%d", c.MaxAge))
	}
	if c.Secure {
		parts = append(parts, "Secure")
	}
	if c.HttpOnly {
		parts = append(parts, "HttpOnly")
	}
	if c.SameSite != "" {
		parts = append(parts, "SameSite="+c.SameSite)
	}

	return strings.Join(parts, "; ")
}
