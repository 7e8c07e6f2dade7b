package orders

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNumberGeneratorFormat(t *testing.T) {
	gen := NewNumberGenerator("ORD")
	now := time.Date(2026, 3, 9, 23, 30, 0, 0, time.UTC)

	pattern := regexp.MustCompile(`^ORD-20260309-[A-Z0-9]{8}$`)
	seen := map[string]struct{}{}
	for i := 0; i < 50; i++ {
		number := gen(now)
		assert.Regexp(t, pattern, number)
		seen[number] = struct{}{}
	}
	assert.Greater(t, len(seen), 45)
}

func TestNumberGeneratorUsesUTCDate(t *testing.T) {
	gen := NewNumberGenerator("")
	east := time.FixedZone("UTC+10", 10*60*60)
	now := time.Date(2026, 3, 10, 5, 0, 0, 0, east)

	assert.Regexp(t, `^ORD-20260309-`, gen(now))
}

func TestNumberSuffixUsesWholeAlphabetAtEveryPosition(t *testing.T) {
	gen := NewNumberGenerator("ORD")
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	prefixLen := len("ORD-20260101-")

	seen := make([]map[byte]struct{}, numberSuffixLen)
	for i := range seen {
		seen[i] = map[byte]struct{}{}
	}
	for i := 0; i < 3000; i++ {
		suffix := gen(now)[prefixLen:]
		for pos := 0; pos < numberSuffixLen; pos++ {
			seen[pos][suffix[pos]] = struct{}{}
		}
	}
	for pos, chars := range seen {
		assert.Len(t, chars, len(numberAlphabet), "position %d", pos)
	}
}
