package cron

import "time"

// maxLookahead bounds the brute-force search so a pathological expression
// (e.g. Feb 30) can never spin forever.
const maxLookahead = 366 * 24 * time.Hour

// NextFire returns the first matching instant strictly after from, searching
// minute-by-minute for 5-field expressions and second-by-second for 6-field
// ones. ok is false if no match is found within the lookahead window.
func (e *Expression) NextFire(from time.Time) (time.Time, bool) {
	step := time.Minute
	if e.hasSecond {
		step = time.Second
	}

	t := from.Add(step).Truncate(step)
	deadline := from.Add(maxLookahead)

	for t.Before(deadline) {
		if e.skipMonth(&t, step) {
			continue
		}
		if e.skipDay(&t, step) {
			continue
		}
		if e.skipHour(&t, step) {
			continue
		}
		if e.skipMinute(&t, step) {
			continue
		}
		if e.hasSecond && e.skipSecond(&t) {
			continue
		}
		if e.Matches(t) {
			return t, true
		}
		t = t.Add(step)
	}
	return time.Time{}, false
}

// skipMonth fast-forwards to the first day of the next matching month when
// the current month doesn't satisfy the month field, avoiding a brute-force
// second-by-second crawl across unmatched months.
func (e *Expression) skipMonth(t *time.Time, step time.Duration) bool {
	if e.month.any || e.month.values[int(t.Month())] {
		return false
	}
	next := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, 1, 0)
	*t = next
	return true
}

func (e *Expression) skipDay(t *time.Time, step time.Duration) bool {
	if e.matchesDay(*t) {
		return false
	}
	next := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1)
	*t = next
	return true
}

func (e *Expression) skipHour(t *time.Time, step time.Duration) bool {
	if e.hour.matchesValue(t.Hour()) {
		return false
	}
	next := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location()).Add(time.Hour)
	*t = next
	return true
}

func (e *Expression) skipMinute(t *time.Time, step time.Duration) bool {
	if e.minute.matchesValue(t.Minute()) {
		return false
	}
	next := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, t.Location()).Add(time.Minute)
	*t = next
	return true
}

func (e *Expression) skipSecond(t *time.Time) bool {
	if e.second.matchesValue(t.Second()) {
		return false
	}
	*t = t.Add(time.Second)
	return true
}

// IsDue reports whether a scheduled job with the given next-run time should
// fire at now. A nil nextRun is never due; this is a total function so
// callers never need to special-case unparseable schedules separately.
func IsDue(nextRun *time.Time, now time.Time) bool {
	if nextRun == nil {
		return false
	}
	return !nextRun.After(now)
}
