package tools

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	nonSlugChars = regexp.MustCompile(`[^a-z0-9\-]`)
	dashRuns     = regexp.MustCompile(`-+`)
)

// AccountEnabled reports whether an AD userAccountControl value has the
// ACCOUNTDISABLE bit clear. Unparseable values count as disabled.
func AccountEnabled(uac string) bool {
	if uac == "" {
		return false
	}
	val, err := strconv.Atoi(strings.TrimSpace(uac))
	if err != nil {
		return false
	}
	return val&0x2 == 0
}

// Slugify converts names like "BC Map Hub Users" to "bc-map-hub-users"
func Slugify(input string) string {
	input = strings.ToLower(strings.TrimSpace(input))

	// Replace spaces and underscores with dashes
	input = strings.ReplaceAll(input, " ", "-")
	input = strings.ReplaceAll(input, "_", "-")

	input = nonSlugChars.ReplaceAllString(input, "")
	input = dashRuns.ReplaceAllString(input, "-")

	return strings.Trim(input, "-")
}

// Chunk splits items into consecutive slices of at most size elements.
// The returned slices share the backing array with items.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) == 0 {
		return nil
	}

	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end:end])
	}
	return chunks
}
