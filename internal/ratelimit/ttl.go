package ratelimit

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Period names accepted in limit specs and counter keys.
const (
	PeriodSecond = "second"
	PeriodMinute = "minute"
	PeriodHour   = "hour"
	PeriodDay    = "day"
	PeriodMonth  = "month"
	PeriodYear   = "year"
)

// ErrBadLimitSpec marks a malformed per-route limit spec. A bad spec is a
// configuration error and must not be silently turned into a default.
var ErrBadLimitSpec = errors.New("bad rate limit spec")

// A month is a flat 30 days everywhere in this package. Calendar-month
// arithmetic would drift near month boundaries; one constant keeps the TTL
// table and reset computation consistent.
var periodSeconds = map[string]int64{
	PeriodSecond: 1,
	PeriodMinute: 60,
	PeriodHour:   3600,
	PeriodDay:    86400,
	PeriodMonth:  2_592_000,
	PeriodYear:   31_536_000,
}

// TTLSeconds maps a period name to the counter expiry in seconds.
// Unknown periods map to the month value: in key-generation contexts the
// longest window is the safe default, since an over-long TTL only delays
// cleanup while a short one would silently widen a quota.
func TTLSeconds(period string) int64 {
	if s, ok := periodSeconds[period]; ok {
		return s
	}
	return periodSeconds[PeriodMonth]
}

// ParseLimitSpec parses a "<count>/<period>" route limit, e.g. "10/minute".
//
// An unknown period name falls back to "minute". This is deliberately a
// different default than TTLSeconds: a spec with a typo'd period should get
// the tightest common window, not a 30-day one. A malformed spec or a
// non-positive count returns ErrBadLimitSpec.
func ParseLimitSpec(spec string) (count int, period string, err error) {
	parts := strings.SplitN(strings.TrimSpace(spec), "/", 2)
	if len(parts) != 2 {
		return 0, "", fmt.Errorf("%w: %q is not <count>/<period>", ErrBadLimitSpec, spec)
	}
	count, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, "", fmt.Errorf("%w: count in %q: %v", ErrBadLimitSpec, spec, err)
	}
	if count < 0 {
		return 0, "", fmt.Errorf("%w: negative count in %q", ErrBadLimitSpec, spec)
	}
	period = strings.ToLower(strings.TrimSpace(parts[1]))
	if _, ok := periodSeconds[period]; !ok {
		period = PeriodMinute
	}
	return count, period, nil
}
