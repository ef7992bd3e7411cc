package recurring

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/reverb-labs/tempo"
)

// FallbackDelay is how far ahead the calculator places the next run when
// the expression matches none of the recognized patterns.
const FallbackDelay = 5 * time.Minute

// NextFunc maps a cron expression and a "from" instant to the next run
// instant. Next is the default; the full-cron mode provides another.
type NextFunc func(expr string, from time.Time) time.Time

// fieldPattern accepts the characters valid in a five-field cron entry.
var fieldPattern = regexp.MustCompile(`^[0-9*,/-]+$`)

// Validate checks that expr is a syntactically well-formed five-field cron
// expression. It does not require the expression to match one of the
// recognized patterns; unrecognized expressions are valid and fall back to
// the fixed delay at calculation time.
func Validate(expr string) error {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return fmt.Errorf("%w: %q has %d fields, want 5", tempo.ErrInvalidExpression, expr, len(fields))
	}
	for i, f := range fields {
		if !fieldPattern.MatchString(f) {
			return fmt.Errorf("%w: field %d of %q", tempo.ErrInvalidExpression, i+1, expr)
		}
	}
	return nil
}

// Next computes the next run instant for expr strictly after from.
//
// The calculator recognizes a closed set of canonical patterns by direct
// field inspection and computes the exact next boundary for each:
//
//	* * * * *    every minute
//	0 * * * *    top of every hour
//	0 0 * * *    daily at midnight
//	0 0 * * 0    weekly on Sunday at midnight
//	0 0 1 * *    monthly on the 1st at midnight
//
// Any other expression falls back to from + FallbackDelay. This is a
// narrow heuristic kept for compatibility, not a general cron evaluator;
// use the full-cron mode for arbitrary expressions.
//
// Next is a pure function: identical inputs always yield identical
// outputs. Boundaries are computed in from's location.
func Next(expr string, from time.Time) time.Time {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return from.Add(FallbackDelay)
	}

	// Round forward: add one minute, zero seconds, then snap to the
	// pattern's boundary.
	base := from.Add(time.Minute).Truncate(time.Minute)
	loc := from.Location()

	switch {
	case match(fields, "*", "*", "*", "*", "*"):
		return base

	case match(fields, "0", "*", "*", "*", "*"):
		if base.Minute() == 0 {
			return base
		}
		return time.Date(base.Year(), base.Month(), base.Day(), base.Hour(), 0, 0, 0, loc).Add(time.Hour)

	case match(fields, "0", "0", "*", "*", "*"):
		return nextMidnight(base, loc)

	case match(fields, "0", "0", "*", "*", "0"):
		next := nextMidnight(base, loc)
		for next.Weekday() != time.Sunday {
			next = next.AddDate(0, 0, 1)
		}
		return next

	case match(fields, "0", "0", "1", "*", "*"):
		first := time.Date(base.Year(), base.Month(), 1, 0, 0, 0, 0, loc)
		if base.Equal(first) {
			return base
		}
		return first.AddDate(0, 1, 0)

	default:
		return from.Add(FallbackDelay)
	}
}

// nextMidnight returns the first midnight at or after base.
func nextMidnight(base time.Time, loc *time.Location) time.Time {
	midnight := time.Date(base.Year(), base.Month(), base.Day(), 0, 0, 0, 0, loc)
	if base.Equal(midnight) {
		return base
	}
	return midnight.AddDate(0, 0, 1)
}

func match(fields []string, want ...string) bool {
	for i, w := range want {
		if fields[i] != w {
			return false
		}
	}
	return true
}
