package cron

import (
	"testing"
	"time"
)

func mustParse(t *testing.T, expr string) *Expression {
	t.Helper()
	e, err := Parse(expr)
	if err != nil {
		t.Fatalf("parse %q: %v", expr, err)
	}
	return e
}

func TestParse_AliasExpansion(t *testing.T) {
	e := mustParse(t, "@daily")
	if e.String() != "0 0 * * *" {
		t.Fatalf("expected @daily to expand to '0 0 * * *', got %q", e.String())
	}
}

func TestParse_InvalidFieldCount(t *testing.T) {
	if _, err := Parse("* * *"); err == nil {
		t.Fatalf("expected error for 3-field expression")
	}
}

func TestParse_IsMemoized(t *testing.T) {
	a := mustParse(t, "5 4 * * *")
	b := mustParse(t, "5 4 * * *")
	if a != b {
		t.Fatalf("expected memoized pointer reuse for identical canonical expression")
	}
}

func TestMatches_SimpleMinuteHour(t *testing.T) {
	e := mustParse(t, "30 14 * * *")
	ok := time.Date(2026, 8, 1, 14, 30, 0, 0, time.UTC)
	notOk := time.Date(2026, 8, 1, 14, 31, 0, 0, time.UTC)
	if !e.Matches(ok) {
		t.Fatalf("expected match at 14:30")
	}
	if e.Matches(notOk) {
		t.Fatalf("expected no match at 14:31")
	}
}

func TestMatches_WeekdayNamesAndSundayZero(t *testing.T) {
	e := mustParse(t, "0 0 * * sun")
	sunday := time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC) // a Sunday
	monday := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	if sunday.Weekday() != time.Sunday {
		t.Fatalf("test fixture error: expected Sunday")
	}
	if !e.Matches(sunday) {
		t.Fatalf("expected match on Sunday")
	}
	if e.Matches(monday) {
		t.Fatalf("expected no match on Monday")
	}
}

func TestMatches_DayOrDowWhenBothRestricted(t *testing.T) {
	// Standard cron OR-semantics: fires on the 1st OR on any Friday.
	e := mustParse(t, "0 0 1 * fri")
	firstOfMonth := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC) // a Saturday
	friday := time.Date(2026, 8, 7, 0, 0, 0, 0, time.UTC)
	wednesday := time.Date(2026, 8, 5, 0, 0, 0, 0, time.UTC)
	if !e.Matches(firstOfMonth) {
		t.Fatalf("expected match on the 1st regardless of weekday")
	}
	if !e.Matches(friday) {
		t.Fatalf("expected match on Friday regardless of day-of-month")
	}
	if e.Matches(wednesday) {
		t.Fatalf("expected no match on an unrestricted-field day")
	}
}

func TestMatches_LastDayOfMonth(t *testing.T) {
	e := mustParse(t, "0 0 L * *")
	last := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC) // Feb 2026 has 28 days
	notLast := time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC)
	if !e.Matches(last) {
		t.Fatalf("expected match on last day of February")
	}
	if e.Matches(notLast) {
		t.Fatalf("expected no match on the 27th")
	}
}

func TestMatches_NearestWeekday(t *testing.T) {
	// 2026-08-01 is a Saturday; nearest weekday to the 1st should be Fri the 31st of July... but
	// since day 1 is a Saturday with no earlier day in month, it rolls forward to Monday the 3rd.
	e := mustParse(t, "0 0 1W * *")
	monday := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	if !e.Matches(monday) {
		t.Fatalf("expected nearest-weekday-to-1st to land on Monday Aug 3rd 2026")
	}
}

func TestMatches_NthWeekday(t *testing.T) {
	// second Friday of August 2026
	e := mustParse(t, "0 0 * * fri#2")
	secondFriday := time.Date(2026, 8, 14, 0, 0, 0, 0, time.UTC)
	firstFriday := time.Date(2026, 8, 7, 0, 0, 0, 0, time.UTC)
	if !e.Matches(secondFriday) {
		t.Fatalf("expected match on the second Friday")
	}
	if e.Matches(firstFriday) {
		t.Fatalf("expected no match on the first Friday")
	}
}

func TestMatches_WeekdayLMeansEverySaturday(t *testing.T) {
	// Weekday L means Saturday (any Saturday), not "the last Saturday of
	// the month" — matching the original evaluator's `value == 6`.
	e := mustParse(t, "0 0 * * L")
	firstSaturday := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	lastSaturday := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	sunday := time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)
	if !e.Matches(firstSaturday) {
		t.Fatalf("expected match on the first Saturday of the month")
	}
	if !e.Matches(lastSaturday) {
		t.Fatalf("expected match on the last Saturday of the month")
	}
	if e.Matches(sunday) {
		t.Fatalf("expected no match on Sunday")
	}
}

func TestNextFire_SkipsToNextMatchingMinute(t *testing.T) {
	e := mustParse(t, "0 * * * *")
	from := time.Date(2026, 8, 1, 10, 15, 0, 0, time.UTC)
	next, ok := e.NextFire(from)
	if !ok {
		t.Fatalf("expected a next fire time")
	}
	want := time.Date(2026, 8, 1, 11, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected next fire at %v, got %v", want, next)
	}
}

func TestNextFire_SkipsAcrossMonths(t *testing.T) {
	e := mustParse(t, "0 0 1 3 *") // Mar 1st, midnight
	from := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	next, ok := e.NextFire(from)
	if !ok {
		t.Fatalf("expected a next fire time")
	}
	want := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected next fire at %v, got %v", want, next)
	}
}

func TestIsDue(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	if IsDue(nil, now) {
		t.Fatalf("nil next-run should never be due")
	}
	if !IsDue(&past, now) {
		t.Fatalf("past next-run should be due")
	}
	if IsDue(&future, now) {
		t.Fatalf("future next-run should not be due")
	}
}
