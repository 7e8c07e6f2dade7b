package orders

import (
	"crypto/rand"
	"strings"
	"time"
)

const numberAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// numberSuffixLen is the length of the random part of an order number.
const numberSuffixLen = 8

// unbiasedByteLimit is the largest multiple of len(numberAlphabet) that fits
// in a byte; bytes at or above it are redrawn.
const unbiasedByteLimit = 256 - 256%len(numberAlphabet)

// NumberGenerator returns a candidate order number for the given instant.
// Uniqueness is enforced by the database, not by the generator.
type NumberGenerator func(now time.Time) string

// NewNumberGenerator formats numbers as PREFIX-YYYYMMDD-XXXXXXXX with an
// uppercase alphanumeric suffix drawn uniformly from crypto/rand.
func NewNumberGenerator(prefix string) NumberGenerator {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "ORD"
	}
	return func(now time.Time) string {
		return prefix + "-" + now.UTC().Format("20060102") + "-" + randomSuffix()
	}
}

func randomSuffix() string {
	suffix := make([]byte, 0, numberSuffixLen)
	buf := make([]byte, numberSuffixLen*2)
	for len(suffix) < numberSuffixLen {
		// crypto/rand.Read never returns an error on supported platforms.
		_, _ = rand.Read(buf)
		for _, b := range buf {
			if int(b) >= unbiasedByteLimit {
				continue
			}
			suffix = append(suffix, numberAlphabet[int(b)%len(numberAlphabet)])
			if len(suffix) == numberSuffixLen {
				break
			}
		}
	}
	return string(suffix)
}
