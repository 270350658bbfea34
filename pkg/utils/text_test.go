package utils

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "short", TruncateRunes("short", 10, "…"))
	assert.Equal(t, "abcd…", TruncateRunes("abcdefghij", 5, "…"))
	assert.Equal(t, "", TruncateRunes("abc", 0, "…"))

	cut := TruncateRunes("Smlouva je neplatná, pokud odporuje zákonu", 12, "…")
	assert.LessOrEqual(t, utf8.RuneCountInString(cut), 12)
	assert.True(t, utf8.ValidString(cut))
}

func TestHashStringSeparatesParts(t *testing.T) {
	assert.NotEqual(t, HashString("ab", "c"), HashString("a", "bc"))
	assert.Equal(t, HashString("x"), HashString("x"))
}

func TestCapStrings(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, CapStrings([]string{" a ", "", "b", "c"}, 2))
	assert.Empty(t, CapStrings(nil, 3))
}
