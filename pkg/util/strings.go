package util

import (
	"strconv"
	"strings"
)

// ParseFloat parses a CSV cell, accepting surrounding spaces and a thousands separator.
func ParseFloat(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	return strconv.ParseFloat(s, 64)
}
