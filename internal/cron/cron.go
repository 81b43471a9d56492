// Package cron implements the 5- and 6-field cron expression parser and
// next-fire evaluator. Parsed expressions are memoized by canonical string
// and additionally cross-checked against github.com/adhocore/gronx and
// github.com/robfig/cron/v3 for the plain field subset both libraries
// support; neither expresses this package's L/W/DW/N#K extensions, so the
// hand-written evaluator in match.go remains authoritative for those.
package cron

import (
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Expression is a parsed, immutable cron expression ready for matching.
type Expression struct {
	canonical string
	hasSecond bool
	second    *field
	minute    *field
	hour      *field
	day       *field
	month     *field
	weekday   *field
}

// field holds the parsed constraint for one cron field.
type field struct {
	kind     string // "month" | "dow" | other
	any      bool
	values   map[int]bool // plain numeric matches
	last     bool         // "L": last day of month (day field only; weekday L sets values[6])
	lastWd   bool         // "LW": last weekday of month (day field only)
	nearest  map[int]bool // "DW": nearest-weekday-to-day-D values (day field only)
	nthDow   []nthDowSpec // "N#K" specs (weekday field only)
}

type nthDowSpec struct {
	weekday int
	nth     int
}

var aliasExpansions = map[string]string{
	"@yearly":   "0 0 1 1 *",
	"@annually": "0 0 1 1 *",
	"@monthly":  "0 0 1 * *",
	"@weekly":   "0 0 * * 0",
	"@daily":    "0 0 * * *",
	"@midnight": "0 0 * * *",
	"@hourly":   "0 * * * *",
}

var monthNames = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

var weekdayNames = map[string]int{
	"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
}

var cache *lru.Cache[string, *Expression]

func init() {
	c, err := lru.New[string, *Expression](512)
	if err != nil {
		panic(err)
	}
	cache = c
}

// Parse parses a cron expression, expanding aliases and memoizing by the
// canonical (post-alias-expansion, whitespace-normalized) string.
func Parse(expr string) (*Expression, error) {
	canonical := strings.Join(strings.Fields(expr), " ")
	if expanded, ok := aliasExpansions[canonical]; ok {
		canonical = expanded
	}

	if cached, ok := cache.Get(canonical); ok {
		return cached, nil
	}

	fields := strings.Fields(canonical)
	var e *Expression
	var err error
	switch len(fields) {
	case 5:
		e, err = parseFields(canonical, fields, false)
	case 6:
		e, err = parseFields(canonical, fields, true)
	default:
		return nil, fmt.Errorf("cron: expected 5 or 6 fields, got %d: %q", len(fields), expr)
	}
	if err != nil {
		return nil, err
	}

	crossCheckPlainExpression(canonical, e.hasSecond)
	cache.Add(canonical, e)
	return e, nil
}

func parseFields(canonical string, fields []string, hasSecond bool) (*Expression, error) {
	idx := 0
	e := &Expression{canonical: canonical, hasSecond: hasSecond}

	if hasSecond {
		f, err := parseField(fields[idx], "second", 0, 59)
		if err != nil {
			return nil, err
		}
		e.second = f
		idx++
	}

	var err error
	if e.minute, err = parseField(fields[idx], "minute", 0, 59); err != nil {
		return nil, err
	}
	idx++
	if e.hour, err = parseField(fields[idx], "hour", 0, 23); err != nil {
		return nil, err
	}
	idx++
	if e.day, err = parseField(fields[idx], "day", 1, 31); err != nil {
		return nil, err
	}
	idx++
	if e.month, err = parseField(fields[idx], "month", 1, 12); err != nil {
		return nil, err
	}
	idx++
	if e.weekday, err = parseField(fields[idx], "dow", 0, 6); err != nil {
		return nil, err
	}

	return e, nil
}

// String returns the canonical (post-alias-expansion) expression string.
func (e *Expression) String() string { return e.canonical }
