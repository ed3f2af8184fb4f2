package container

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	durationTerm      = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)\s*([a-zA-Zµ]+)\s*(?:,|and\b)?`)
	errEmptyDuration  = errors.New("empty duration")
	errNonPositiveDur = errors.New("duration must be positive")
	errDurationRange  = errors.New("duration out of range")
)

var durationUnits = map[string]time.Duration{
	"ns": time.Nanosecond, "nanosecond": time.Nanosecond, "nanoseconds": time.Nanosecond,
	"us": time.Microsecond, "µs": time.Microsecond, "microsecond": time.Microsecond, "microseconds": time.Microsecond,
	"ms": time.Millisecond, "msec": time.Millisecond, "msecs": time.Millisecond, "millisecond": time.Millisecond, "milliseconds": time.Millisecond,
	"s": time.Second, "sec": time.Second, "secs": time.Second, "second": time.Second, "seconds": time.Second,
	"m": time.Minute, "min": time.Minute, "mins": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hr": time.Hour, "hrs": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"d": 24 * time.Hour, "day": 24 * time.Hour, "days": 24 * time.Hour,
}

// ParseDuration parses Go duration syntax ("1m30s") as well as spelled out
// expressions such as "90 seconds", "1 minute 30 seconds" or "2 min, 5 sec".
// The result must be positive.
func ParseDuration(expr string) (time.Duration, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return 0, errEmptyDuration
	}
	d, err := time.ParseDuration(expr)
	if err != nil {
		if d, err = parseHumanDuration(expr); err != nil {
			return 0, err
		}
	}
	if d <= 0 {
		return 0, errNonPositiveDur
	}
	return d, nil
}

func parseHumanDuration(expr string) (time.Duration, error) {
	var total time.Duration
	rest := expr
	for rest != "" {
		m := durationTerm.FindStringSubmatch(rest)
		if m == nil {
			return 0, fmt.Errorf("cannot parse %q", strings.TrimSpace(rest))
		}
		unit, ok := durationUnits[strings.ToLower(m[2])]
		if !ok {
			return 0, fmt.Errorf("unknown unit %q", m[2])
		}
		n, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, err
		}
		term := n * float64(unit)
		if term >= math.MaxInt64 || time.Duration(term) > math.MaxInt64-total {
			return 0, errDurationRange
		}
		total += time.Duration(term)
		rest = strings.TrimSpace(rest[len(m[0]):])
	}
	return total, nil
}
