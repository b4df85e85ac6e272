// Package ratelimit evaluates the four nested request windows of a
// credential. Resets are deliberately coarse: the minute window rolls after
// 60s of wall time, while hour/day/month roll on calendar-field change
// (hour-of-day, day-of-month, month) rather than sliding durations. The
// evaluation is pure; the store applies it inside a row-locked transaction.
package ratelimit

import (
	"time"

	"github.com/suncrest/sungate/pkg/models"
)

// Window names one of the four ceilings.
type Window string

const (
	WindowMinute Window = "minute"
	WindowHour   Window = "hour"
	WindowDay    Window = "day"
	WindowMonth  Window = "month"
)

// Decision is the outcome of one combined reset-check-increment evaluation.
type Decision struct {
	Allowed  bool
	Violated Window       // set iff !Allowed
	Usage    models.Usage // counters to write back when Allowed
}

// Evaluate applies window resets to usage, checks the ceilings in
// minute→hour→day→month order, and on success returns the incremented
// counters. A ceiling of zero or below is unlimited.
func Evaluate(usage models.Usage, limits models.RateLimit, now time.Time) Decision {
	u := usage

	last := u.LastResetAt.UTC()
	nowUTC := now.UTC()

	reset := false
	if nowUTC.Sub(last) >= time.Minute {
		u.Minute = 0
		reset = true
	}
	if nowUTC.Hour() != last.Hour() {
		u.Hour = 0
		reset = true
	}
	if nowUTC.Day() != last.Day() {
		u.Day = 0
		reset = true
	}
	if nowUTC.Month() != last.Month() {
		u.Month = 0
		reset = true
	}
	if reset {
		u.LastResetAt = nowUTC
	}

	checks := []struct {
		window  Window
		count   int
		ceiling int
	}{
		{WindowMinute, u.Minute, limits.PerMinute},
		{WindowHour, u.Hour, limits.PerHour},
		{WindowDay, u.Day, limits.PerDay},
		{WindowMonth, u.Month, limits.PerMonth},
	}
	for _, c := range checks {
		if c.ceiling > 0 && c.count >= c.ceiling {
			return Decision{Allowed: false, Violated: c.window}
		}
	}

	u.Minute++
	u.Hour++
	u.Day++
	u.Month++
	u.TotalRequests++
	u.LastRequestAt = &nowUTC

	return Decision{Allowed: true, Usage: u}
}
