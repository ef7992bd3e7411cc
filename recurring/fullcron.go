package recurring

import (
	"fmt"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/reverb-labs/tempo"
)

// fullParser supports standard 5-field cron and descriptors like "@every 30s".
var fullParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseFull parses expr with the full cron grammar. This is the additive
// general-evaluator mode; the heuristic Next remains the default so that
// existing deployments keep their fallback behavior.
func ParseFull(expr string) (cronlib.Schedule, error) {
	sched, err := fullParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", tempo.ErrInvalidExpression, err)
	}
	return sched, nil
}

// ValidateFull checks expr against the full cron grammar.
func ValidateFull(expr string) error {
	_, err := ParseFull(expr)
	return err
}

// NextFull computes the next run instant for expr strictly after from
// using the full cron grammar. Invalid expressions fall back to
// from + FallbackDelay, mirroring the heuristic's conservative default.
func NextFull(expr string, from time.Time) time.Time {
	sched, err := ParseFull(expr)
	if err != nil {
		return from.Add(FallbackDelay)
	}
	return sched.Next(from)
}
