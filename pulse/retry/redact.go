package retry

import (
	"regexp"
)

// MaxMessageLength bounds stored and logged error text, in runes.
const MaxMessageLength = 500

var (
	urlPattern   = regexp.MustCompile(`(?i)\b[a-z][a-z0-9+.-]*://[^\s"'<>]+`)
	tokenPattern = regexp.MustCompile(`[A-Za-z0-9]{32,}`)
)

// Redact removes URLs (which may embed query tokens) and long opaque
// strings (keys, session ids) from msg, then truncates it.
func Redact(msg string) string {
	msg = urlPattern.ReplaceAllString(msg, "[url]")
	msg = tokenPattern.ReplaceAllString(msg, "[redacted]")
	if r := []rune(msg); len(r) > MaxMessageLength {
		msg = string(r[:MaxMessageLength])
	}
	return msg
}

// RedactError is Redact(err.Error()), empty for nil.
func RedactError(err error) string {
	if err == nil {
		return ""
	}
	return Redact(err.Error())
}
