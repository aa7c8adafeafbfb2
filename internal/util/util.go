// Package util provides helpers for cleaning and parsing host command arguments.
package util

import (
	"fmt"
	"math"
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

// CleanArgs trims quotes and unescapes every argument in place and returns args.
func CleanArgs(args []string) []string {
	for i, v := range args {
		args[i] = FixEscapeQuotes(TrimQuotes(v))
	}
	return args
}

// ParseFloat parses a finite float, ignoring surrounding quotes and spaces.
func ParseFloat(s string) (float64, error) {
	s = strings.TrimSpace(TrimQuotes(s))
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite number: %q", s)
	}
	return f, nil
}

// ParseNonNegative parses a finite float that must be >= 0, such as a
// duration in seconds.
func ParseNonNegative(s string) (float64, error) {
	f, err := ParseFloat(s)
	if err != nil {
		return 0, err
	}
	if f < 0 {
		return 0, fmt.Errorf("negative value: %v", f)
	}
	return f, nil
}
