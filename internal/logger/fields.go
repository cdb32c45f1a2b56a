package logger

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
)

const (
	maxPathLength      = 256
	maxTextLength      = 1000
	maxRequestIDLength = 64
)

// Clean makes caller-supplied text safe to log: invalid UTF-8 and control
// characters are dropped and the result is cut to at most max bytes on a
// rune boundary, with "..." appended when cut.
func Clean(s string, max int) string {
	if s == "" {
		return ""
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	s = strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || r == ' ' {
			return r
		}
		return -1
	}, s)
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// Path is a "path" field for a request URL path
func Path(p string) zap.Field {
	return zap.String("path", Clean(p, maxPathLength))
}

// Text is a field for free text such as a destination name or provider message
func Text(key, s string) zap.Field {
	return zap.String(key, Clean(s, maxTextLength))
}

// RequestID accepts a caller-supplied request id if it is short and made
// only of letters, digits, '-', '_' and '.'. Anything else yields "".
func RequestID(raw string) string {
	if raw == "" || len(raw) > maxRequestIDLength {
		return ""
	}
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		default:
			return ""
		}
	}
	return raw
}
