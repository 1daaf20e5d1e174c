// Package ansi removes terminal escape sequences from raw log lines.
package ansi

import "strings"

const esc = 0x1B

// Strip removes CSI, OSC, and short two-byte escape sequences from s.
// It preserves every non-escape byte, including tabs and multi-byte
// UTF-8 sequences, and is idempotent: Strip(Strip(x)) == Strip(x).
//
// When s contains no ESC byte, Strip returns s unchanged without
// allocating.
func Strip(s string) string {
	if strings.IndexByte(s, esc) == -1 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != esc {
			b.WriteByte(c)
			continue
		}

		// Consume the escape sequence starting at i; advance i to its
		// last consumed byte (the loop's i++ moves past it).
		i = consumeEscape(s, i)
	}

	return b.String()
}

// consumeEscape returns the index of the last byte belonging to the
// escape sequence beginning at s[start] (which is ESC). If the
// sequence is incomplete or unrecognized, it consumes only the ESC
// byte itself.
func consumeEscape(s string, start int) int {
	if start+1 >= len(s) {
		return start
	}

	switch s[start+1] {
	case '[':
		// CSI: ESC [ params... final-byte (0x40-0x7E)
		i := start + 2
		for i < len(s) {
			c := s[i]
			if c >= 0x40 && c <= 0x7E {
				return i
			}
			i++
		}
		return len(s) - 1

	case ']':
		// OSC: ESC ] ... BEL (0x07) or ST (ESC \)
		i := start + 2
		for i < len(s) {
			if s[i] == 0x07 {
				return i
			}
			if s[i] == esc && i+1 < len(s) && s[i+1] == '\\' {
				return i + 1
			}
			i++
		}
		return len(s) - 1

	default:
		// Short two-byte escape (e.g. ESC c for terminal reset).
		return start + 1
	}
}
