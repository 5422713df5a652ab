package jwt

import (
	"strconv"
	"strings"
	"time"
)

// DefaultTTLFallback is returned by ParseTTL for unusable input.
const DefaultTTLFallback = 15 * time.Minute

// ParseTTL converts a duration string into a whole number of seconds.
//
// Accepted forms are bare integers (seconds), an integer with a "d" suffix
// (days), and anything time.ParseDuration understands. Sub-second remainders
// are truncated. Unparseable, zero, or negative input yields
// DefaultTTLFallback, never a non-positive duration.
func ParseTTL(s string) time.Duration {
	d, ok := parseTTL(s)
	if !ok {
		return DefaultTTLFallback
	}
	return d
}

// ValidTTL reports whether ParseTTL would use s rather than the fallback.
func ValidTTL(s string) bool {
	_, ok := parseTTL(s)
	return ok
}

func parseTTL(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	var d time.Duration
	switch {
	case isDigits(s):
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n > int64(maxTTL/time.Second) {
			return 0, false
		}
		d = time.Duration(n) * time.Second
	case strings.HasSuffix(s, "d") && isDigits(strings.TrimSuffix(s, "d")):
		n, err := strconv.ParseInt(strings.TrimSuffix(s, "d"), 10, 64)
		if err != nil || n > int64(maxTTL/(24*time.Hour)) {
			return 0, false
		}
		d = time.Duration(n) * 24 * time.Hour
	default:
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return 0, false
		}
		d = parsed
	}

	d = d.Truncate(time.Second)
	if d <= 0 {
		return 0, false
	}
	return d, true
}

// maxTTL bounds parsed values well below time.Duration overflow.
const maxTTL = 10 * 365 * 24 * time.Hour

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
