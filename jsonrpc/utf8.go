package jsonrpc

import "unicode/utf8"

var replacement = []byte("\uFFFD")

// toValidUTF8 replaces each maximal ill-formed subsequence of p with one
// U+FFFD. A lone invalid byte is one subsequence; so is a truncated prefix of
// an otherwise well-formed sequence, such as E2 82.
func toValidUTF8(p []byte) []byte {
	if utf8.Valid(p) {
		return p
	}
	out := make([]byte, 0, len(p)+len(replacement))
	for len(p) > 0 {
		r, size := utf8.DecodeRune(p)
		if r == utf8.RuneError && size == 1 {
			out = append(out, replacement...)
			p = p[invalidLen(p):]
			continue
		}
		out = append(out, p[:size]...)
		p = p[size:]
	}
	return out
}

// invalidLen returns the length of the ill-formed subsequence at the start of p.
func invalidLen(p []byte) int {
	n := 0
	lo, hi := byte(0x80), byte(0xBF)
	switch b := p[0]; {
	case b >= 0xC2 && b <= 0xDF:
		n = 2
	case b == 0xE0:
		n, lo = 3, 0xA0
	case b >= 0xE1 && b <= 0xEC, b == 0xEE, b == 0xEF:
		n = 3
	case b == 0xED:
		n, hi = 3, 0x9F
	case b == 0xF0:
		n, lo = 4, 0x90
	case b >= 0xF1 && b <= 0xF3:
		n = 4
	case b == 0xF4:
		n, hi = 4, 0x8F
	default:
		return 1
	}
	i := 1
	for ; i < n && i < len(p); i++ {
		if p[i] < lo || p[i] > hi {
			break
		}
		lo, hi = 0x80, 0xBF
	}
	return i
}
