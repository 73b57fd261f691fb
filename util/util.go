// Package util contains misc internal utilities.
package util

import (
	"strconv"
	"strings"
	"time"
)

// IntSliceToCSV convets a slice of ints to CSV formatted data.
// e.g., []int{1,2,3,4,5} => "1,2,3,4,5"
func IntSliceToCSV(is []int) string {
	s := make([]string, len(is))
	for i, v := range is {
		s[i] = strconv.Itoa(v)
	}

	return strings.Join(s, ",")
}

// AllElementsNumbers returns true if s is not empty and
// made only of digits and at most one decimal point
func AllElementsNumbers(s string) bool {
	if s == "" {
		return false
	}
	dots := 0
	for _, r := range s {
		switch {
		case r == '.':
			dots++
			if dots > 1 {
				return false
			}
		case r < '0' || r > '9':
			return false
		}
	}
	return s != "."
}

// ParseDuration is time.ParseDuration that reads a bare number as seconds,
// so "2.5" and "2500ms" are the same
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if AllElementsNumbers(s) {
		s += "s"
	}
	return time.ParseDuration(s)
}
