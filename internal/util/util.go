// Package util provides small helpers for parsing command arguments.
package util

import (
	"fmt"
	"strconv"
	"strings"
)

// TrimQuotes removes leading and trailing double quotes from a string.
func TrimQuotes(s string) string {
	return strings.Trim(s, `"`)
}

// FixEscapeQuotes replaces escaped double quotes ("") with single double quotes (").
func FixEscapeQuotes(s string) string {
	return strings.ReplaceAll(s, `""`, `"`)
}

// JoinText rebuilds a free-text argument that was split on whitespace.
// Surrounding quotes are dropped and doubled quotes unescaped.
func JoinText(args []string) string {
	return FixEscapeQuotes(TrimQuotes(strings.TrimSpace(strings.Join(args, " "))))
}

// ParseFloats parses exactly n numeric arguments.
func ParseFloats(args []string, n int) ([]float64, error) {
	if len(args) != n {
		return nil, fmt.Errorf("expected %d arguments, got %d", n, len(args))
	}
	out := make([]float64, n)
	for i, a := range args {
		f, err := strconv.ParseFloat(TrimQuotes(a), 64)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = f
	}
	return out, nil
}
