package util

import "strings"

// SanitizeText removes what Postgres text columns reject (NUL bytes) and
// the other control characters PDF extractors emit, keeping newlines and
// tabs. CRLF becomes LF.
func SanitizeText(s string) string {
	if s == "" {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case r == '\r':
			return '\n'
		case r < 0x20 || r == 0x7f || r == '�':
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}
