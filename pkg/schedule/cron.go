// Package schedule validates cron trigger expressions and computes
// upcoming run times.
package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser parses standard 5-field cron expressions.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Validate checks that expr is a valid cron expression.
func Validate(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// NextRun returns the next time expr fires after from, in UTC.
func NextRun(expr string, from time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	return sched.Next(from).UTC(), nil
}

// NextRunAny returns the earliest next run time across all expressions.
func NextRunAny(exprs []string, from time.Time) (time.Time, error) {
	var earliest time.Time
	for _, expr := range exprs {
		next, err := NextRun(expr, from)
		if err != nil {
			return time.Time{}, err
		}
		if earliest.IsZero() || next.Before(earliest) {
			earliest = next
		}
	}
	return earliest, nil
}
