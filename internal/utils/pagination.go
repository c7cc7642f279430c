// Package utils holds small helpers shared by the HTTP layer that carry no
// domain knowledge.
package utils

import (
	"strconv"
	"strings"
)

// AtoiDefault parses s as an int, returning def when s is empty or invalid.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ClampLimit parses a "?limit=" value. Missing or malformed input yields
// def; anything outside [1, maxLimit] is clamped into range.
//
//	utils.ClampLimit("", 50, 50)   // 50
//	utils.ClampLimit("0", 50, 50)  // 1
//	utils.ClampLimit("99", 50, 50) // 50
func ClampLimit(raw string, def, maxLimit int) int {
	n := AtoiDefault(strings.TrimSpace(raw), def)
	if n < 1 {
		return 1
	}
	if n > maxLimit {
		return maxLimit
	}
	return n
}
