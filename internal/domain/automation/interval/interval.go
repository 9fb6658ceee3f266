// Package interval parses compact duration tokens used by automation commands
package interval

import (
	"math"
	"regexp"
	"strconv"
)

var tokenPattern = regexp.MustCompile(`^(\d+)([smhd])$`)

var unitSeconds = map[string]int{
	"s": 1,
	"m": 60,
	"h": 3600,
	"d": 86400,
}

// Parse converts a token such as 10s, 1m, 2h or 1d into seconds.
// ok is false for anything that is not <digits><unit> or does not fit in an int.
func Parse(token string) (seconds int, ok bool) {
	m := tokenPattern.FindStringSubmatch(token)
	if m == nil {
		return 0, false
	}

	value, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}

	unit := unitSeconds[m[2]]
	if value > math.MaxInt/unit {
		return 0, false
	}

	return value * unit, true
}
