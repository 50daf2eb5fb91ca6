// Package parser turns poll intervals and job schedule expressions into cron schedules.
package parser

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ParseSchedule accepts a plain duration ("5s"), an "@every" descriptor or a
// standard five-field cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty schedule expression")
	}
	if d, err := time.ParseDuration(expr); err == nil {
		return EverySchedule(d)
	}
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return schedule, nil
}

// EverySchedule returns a fixed-delay schedule. cron rounds delays to whole seconds.
func EverySchedule(d time.Duration) (cron.Schedule, error) {
	if d < time.Second {
		return nil, fmt.Errorf("interval %s is shorter than one second", d)
	}
	return cron.Every(d), nil
}

// CalculateNextRun returns the next activation of expr after from.
// Invalid expressions fall back to one hour later.
func CalculateNextRun(expr string, from time.Time) time.Time {
	schedule, err := ParseSchedule(expr)
	if err != nil {
		return from.Add(time.Hour)
	}
	return schedule.Next(from)
}
