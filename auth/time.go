package auth

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const maxLifetimeSeconds = math.MaxInt64 / int64(time.Second)

// ParseLifetime parses token lifetimes such as "7d", "2w", "12h", "90m" or a
// bare number of seconds. Values that do not fit a time.Duration are
// rejected.
func ParseLifetime(value string) (time.Duration, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return 0, fmt.Errorf("lifetime: empty value")
	}

	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("lifetime %q: must be positive", value)
		}
		if n > maxLifetimeSeconds {
			return 0, fmt.Errorf("lifetime %q: out of range", value)
		}
		return time.Duration(n) * time.Second, nil
	}

	unit := time.Duration(0)
	switch {
	case strings.HasSuffix(v, "d"):
		unit = 24 * time.Hour
	case strings.HasSuffix(v, "w"):
		unit = 7 * 24 * time.Hour
	}

	if unit > 0 {
		n, err := strconv.ParseFloat(v[:len(v)-1], 64)
		if err != nil {
			return 0, fmt.Errorf("lifetime %q: %w", value, err)
		}
		if math.IsNaN(n) || n <= 0 {
			return 0, fmt.Errorf("lifetime %q: must be positive", value)
		}
		if n >= float64(math.MaxInt64)/float64(unit) {
			return 0, fmt.Errorf("lifetime %q: out of range", value)
		}
		return time.Duration(n * float64(unit)), nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("lifetime %q: %w", value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("lifetime %q: must be positive", value)
	}
	return d, nil
}
