// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package transport

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// DefaultExpireAfter is the validity window when none is configured.
const DefaultExpireAfter = 5 * time.Minute

const day = 24 * time.Hour

var durationUnits = map[string]time.Duration{
	"ns": time.Nanosecond, "nsec": time.Nanosecond,
	"us": time.Microsecond, "usec": time.Microsecond,
	"ms": time.Millisecond, "msec": time.Millisecond,
	"s": time.Second, "sec": time.Second, "secs": time.Second, "second": time.Second, "seconds": time.Second,
	"m": time.Minute, "min": time.Minute, "mins": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hr": time.Hour, "hrs": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"d": day, "day": day, "days": day,
	"w": 7 * day, "week": 7 * day, "weeks": 7 * day,
}

// ParseExpireAfter parses a humanized duration such as "5m", "90s",
// "1h 30m" or "2days". Terms are summed; the result must be positive.
func ParseExpireAfter(text string) (time.Duration, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidDuration)
	}

	var total time.Duration
	for s != "" {
		digits := strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' })
		if digits == 0 {
			return 0, fmt.Errorf("%w: %q: expected a number at %q", ErrInvalidDuration, text, s)
		}
		if digits < 0 {
			return 0, fmt.Errorf("%w: %q: missing unit", ErrInvalidDuration, text)
		}
		n, err := strconv.ParseInt(s[:digits], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %v", ErrDurationOverflow, text, err)
		}
		s = strings.TrimLeft(s[digits:], " ")

		end := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsLetter(r) })
		if end < 0 {
			end = len(s)
		}
		unit, ok := durationUnits[s[:end]]
		if !ok {
			return 0, fmt.Errorf("%w: %q: unknown unit %q", ErrInvalidDuration, text, s[:end])
		}
		s = strings.TrimLeft(s[end:], " ")

		if n > math.MaxInt64/int64(unit) {
			return 0, fmt.Errorf("%w: %q", ErrDurationOverflow, text)
		}
		term := time.Duration(n) * unit
		if total > math.MaxInt64-term {
			return 0, fmt.Errorf("%w: %q", ErrDurationOverflow, text)
		}
		total += term
	}

	if total <= 0 {
		return 0, fmt.Errorf("%w: %q is not positive", ErrInvalidDuration, text)
	}
	return total, nil
}

// expirationFor returns creation plus d, failing when the result does not
// fit in ingress_expiry's nanosecond range.
func expirationFor(creation time.Time, d time.Duration) (time.Time, error) {
	if d <= 0 {
		return time.Time{}, fmt.Errorf("%w: %s is not positive", ErrInvalidDuration, d)
	}
	if creation.UnixNano() < 0 {
		return time.Time{}, fmt.Errorf("%w: creation time %s precedes the epoch", ErrInvalidDuration, creation)
	}
	limit := time.Unix(0, math.MaxInt64)
	if d > limit.Sub(creation) {
		return time.Time{}, fmt.Errorf("%w: %s after %s", ErrDurationOverflow, d, creation.Format(time.RFC3339))
	}
	return creation.Add(d), nil
}
