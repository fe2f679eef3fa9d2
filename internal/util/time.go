package util

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var durationPattern = regexp.MustCompile(`(\d+)([dwmh])`)

// ParseLookback parses a compound lookback duration such as "12h", "7d",
// "2w3d" or "1m" (months are treated as 30 days). An empty string yields 0.
func ParseLookback(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}

	matches := durationPattern.FindAllStringSubmatch(strings.ToLower(s), -1)
	if matches == nil {
		return 0, fmt.Errorf("invalid duration %q (expected forms like 12h, 7d, 2w3d)", s)
	}

	// Reject input with trailing garbage, e.g. "7dx".
	consumed := 0
	for _, m := range matches {
		consumed += len(m[0])
	}
	if consumed != len(s) {
		return 0, fmt.Errorf("invalid duration %q (expected forms like 12h, 7d, 2w3d)", s)
	}

	var total time.Duration
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		switch m[2] {
		case "h":
			total += time.Duration(n) * time.Hour
		case "d":
			total += time.Duration(n) * 24 * time.Hour
		case "w":
			total += time.Duration(n) * 7 * 24 * time.Hour
		case "m":
			total += time.Duration(n) * 30 * 24 * time.Hour
		}
	}
	return total, nil
}
