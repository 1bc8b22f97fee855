// Package redact scrubs user text and credentials before they reach logs.
package redact

import (
	"regexp"
	"strings"
	"sync/atomic"
	"unicode/utf8"
)

var (
	enabled atomic.Bool
	maxLen  atomic.Int64
)

var (
	emailRe  = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	phoneRe  = regexp.MustCompile(`\b\+?\d[\d\s\-]{7,}\d\b`)
	bearerRe = regexp.MustCompile(`(?i)\b(sk|key|token)[-_][a-z0-9_\-]{12,}\b`)
)

// SetEnabled toggles redaction of user text.
func SetEnabled(v bool) {
	enabled.Store(v)
}

func Enabled() bool {
	return enabled.Load()
}

// SetMaxLen caps how many runes of user text are logged. Zero disables the cap.
func SetMaxLen(n int) {
	if n < 0 {
		n = 0
	}
	maxLen.Store(int64(n))
}

// Text scrubs emails, phone numbers and API-key-looking tokens when enabled,
// then applies the length cap.
func Text(in string) string {
	out := in
	if enabled.Load() && strings.TrimSpace(in) != "" {
		out = emailRe.ReplaceAllString(out, "[REDACTED_EMAIL]")
		out = phoneRe.ReplaceAllString(out, "[REDACTED_PHONE]")
		out = bearerRe.ReplaceAllString(out, "[REDACTED_KEY]")
	}
	return truncate(out, int(maxLen.Load()))
}

// Secret masks a credential for display, keeping the last four characters.
// It always applies, whatever SetEnabled says.
func Secret(s string) string {
	if s == "" {
		return ""
	}
	n := utf8.RuneCountInString(s)
	if n <= 8 {
		return "****"
	}
	r := []rune(s)
	return "****" + string(r[n-4:])
}

func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}
