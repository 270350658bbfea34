package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode/utf8"
)

// HashString returns the hex SHA-256 of the joined parts; used for cache keys.
func HashString(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// TruncateRunes cuts s to at most max runes, ending in marker when cut.
// The marker counts toward max.
func TruncateRunes(s string, max int, marker string) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	keep := max - utf8.RuneCountInString(marker)
	if keep <= 0 {
		return string([]rune(marker)[:max])
	}
	return strings.TrimRightFunc(string([]rune(s)[:keep]), isSpace) + marker
}

// CapStrings trims each entry, drops empties and keeps at most max items.
func CapStrings(in []string, max int) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == max {
			break
		}
	}
	return out
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
