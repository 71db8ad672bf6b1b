package utils

import (
	"math"
	"unicode/utf16"
)

// SeededRandom maps a seed string to a float in [0, 1). The same seed
// always yields the same value, which keeps derived listing fields
// (match score, fallback photo) stable across refetches. The hash is a
// 31-based rolling hash over UTF-16 code units with 32-bit wraparound,
// scrambled through a sine fold.
func SeededRandom(seed string) float64 {
	var h int32
	for _, u := range utf16.Encode([]rune(seed)) {
		h = 31*h + int32(u)
	}
	x := math.Sin(float64(h)) * 10000
	return x - math.Floor(x)
}
