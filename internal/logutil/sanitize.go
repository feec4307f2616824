// Package logutil keeps user-controlled values from corrupting log output.
package logutil

import "strings"

// Sanitize flattens newlines and strips control characters so a crafted
// session name or token can't fake log entries or mangle the terminal the
// logs are tailed in.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteRune(' ')
		case r < 32 || r == 127:
			// drop
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
