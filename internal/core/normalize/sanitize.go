package normalize

import (
	"strings"
	"unicode/utf8"
)

// Sanitize strips characters that must never reach storage or the feed:
// NUL, ASCII controls other than '\n', '\r', '\t', DEL, the C1 control
// block U+0080..U+009F, and any invalid UTF-8 bytes.
// Clean input is returned as-is without allocating.
func Sanitize(s string) string {
	if s == "" {
		return s
	}

	start := firstDirty(s)
	if start == len(s) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	b.WriteString(s[:start])

	for i := start; i < len(s); {
		c := s[i]

		if c < 0x20 {
			if c == '\n' || c == '\r' || c == '\t' {
				b.WriteByte(c)
			}
			i++
			continue
		}
		if c == 0x7F {
			i++
			continue
		}
		if c < 0x80 {
			b.WriteByte(c)
			i++
			continue
		}

		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			i++ // invalid byte, drop it
			continue
		}
		if r >= 0x80 && r <= 0x9F {
			i += size // C1 control, drop it
			continue
		}

		// copy the original bytes, no re-encode
		b.WriteString(s[i : i+size])
		i += size
	}

	return b.String()
}

// firstDirty returns the index of the first byte Sanitize would drop,
// or len(s) when the whole string is already clean
func firstDirty(s string) int {
	i := 0
	for i < len(s) {
		c := s[i]
		if c < 0x20 {
			if c == '\n' || c == '\r' || c == '\t' {
				i++
				continue
			}
			return i
		}
		if c == 0x7F {
			return i
		}
		if c < 0x80 {
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			return i
		}
		if r >= 0x80 && r <= 0x9F {
			return i
		}
		i += size
	}
	return i
}
