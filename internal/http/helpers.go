package http

import (
	"sort"
	"strconv"
	"strings"
)

// formatPercent renders basis points as a percentage with one decimal place,
// rounding half up: 5000 -> "50.0%", 6667 -> "66.7%".
func formatPercent(bps int64) string {
	if bps < 0 {
		bps = 0
	}
	tenths := (bps + 5) / 10
	return strconv.FormatInt(tenths/10, 10) + "." + strconv.FormatInt(tenths%10, 10) + "%"
}

// filterCacheKey canonicalizes a filter ID list so equivalent filters share a
// cache entry: sorted, deduplicated, comma joined. The empty filter maps to
// the empty key.
func filterCacheKey(ids []int64) string {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var b strings.Builder
	for i, id := range sorted {
		if i > 0 && id == sorted[i-1] {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(id, 10))
	}
	return b.String()
}

// sanitizeInput removes potentially dangerous characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}

// isAlreadyExists sniffs the duplicate-row error every registry backend
// reports, so registrations answer 409 instead of 500.
func isAlreadyExists(err error) bool {
	return err != nil && strings.Contains(err.Error(), "already exists")
}

// isNotFound sniffs the missing-row error the registry backends report.
func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "not found")
}
