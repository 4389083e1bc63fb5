package schema

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var retentionUnits = map[byte]time.Duration{
	's': time.Second,
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
}

// ParseRetention parses a document duration such as "90d", "12h" or "30m".
// Go duration syntax ("1h30m") is accepted as well. The result must be positive.
func ParseRetention(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return 0, retentionError(s)
	}

	var d time.Duration
	if unit, ok := retentionUnits[s[len(s)-1]]; ok {
		if n, err := strconv.ParseInt(s[:len(s)-1], 10, 64); err == nil {
			if n > math.MaxInt64/int64(unit) {
				return 0, retentionError(s)
			}
			d = time.Duration(n) * unit
		} else if d, err = time.ParseDuration(s); err != nil {
			return 0, retentionError(s)
		}
	} else {
		var err error
		if d, err = time.ParseDuration(s); err != nil {
			return 0, retentionError(s)
		}
	}

	if d <= 0 {
		return 0, retentionError(s)
	}
	return d, nil
}

func retentionError(s string) error {
	return &ConfigurationError{Msg: fmt.Sprintf("invalid document duration %q", s)}
}
