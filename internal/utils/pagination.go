// Package utils holds tiny helpers shared across layers with no domain
// knowledge of their own.
package utils

import "strconv"

// AtoiDefault parses s as an int, returning def when s is empty or not a
// valid integer. Query-string parsing uses it for page and page_size.
func AtoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
