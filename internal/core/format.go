package core

import (
	"math"
	"strconv"
)

const (
	minSuggestedChunk = 1000
	maxSuggestedChunk = 10000
)

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// SuggestChunkSize returns a default rows-per-file for rowCount data rows:
// a tenth of the rows, rounded, clamped to [1000, 10000]. Surfaces use it to
// pre-populate input; Split never applies it.
func SuggestChunkSize(rowCount int) int {
	n := int(math.Floor(float64(rowCount)/10 + 0.5))
	return min(max(n, minSuggestedChunk), maxSuggestedChunk)
}

// FormatFileSize renders a byte count with 1024-based units and at most two
// decimals, e.g. "0 Bytes", "1.5 KB", "12.34 MB".
func FormatFileSize(n int64) string {
	if n <= 0 {
		return "0 Bytes"
	}

	v, i := float64(n), 0
	for v >= 1024 && i < len(sizeUnits)-1 {
		v /= 1024
		i++
	}
	v = math.Round(v*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + sizeUnits[i]
}
