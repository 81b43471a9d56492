package cron

import (
	"fmt"
	"strconv"
	"strings"
)

// parseField parses one comma-separated cron field into its constraint set.
// kind is "month"/"dow" (enabling name aliases) or any other string.
func parseField(raw, kind string, min, max int) (*field, error) {
	f := &field{kind: kind, values: map[int]bool{}}

	for _, part := range strings.Split(raw, ",") {
		if part == "" {
			return nil, fmt.Errorf("cron: empty item in %s field %q", kind, raw)
		}
		if err := parseFieldItem(f, part, kind, min, max); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func parseFieldItem(f *field, part, kind string, min, max int) error {
	switch {
	case part == "*":
		f.any = true
		return nil

	case kind == "day" && part == "L":
		f.last = true
		return nil

	case kind == "day" && part == "LW":
		f.lastWd = true
		return nil

	case kind == "day" && strings.HasSuffix(part, "W"):
		dayStr := strings.TrimSuffix(part, "W")
		d, err := strconv.Atoi(dayStr)
		if err != nil || d < 1 || d > 31 {
			return fmt.Errorf("cron: invalid nearest-weekday spec %q", part)
		}
		if f.nearest == nil {
			f.nearest = map[int]bool{}
		}
		f.nearest[d] = true
		return nil

	case kind == "dow" && part == "L":
		// Weekday L means Saturday (weekday 6), every week — not "the
		// last Saturday of the month" — matching the original evaluator's
		// `return value == 6`.
		f.values[6] = true
		return nil

	case kind == "dow" && strings.Contains(part, "#"):
		pieces := strings.SplitN(part, "#", 2)
		wd, err := resolveValue(pieces[0], "dow", min, max)
		if err != nil {
			return err
		}
		n, err := strconv.Atoi(pieces[1])
		if err != nil || n < 1 || n > 5 {
			return fmt.Errorf("cron: invalid N#K occurrence %q", part)
		}
		f.nthDow = append(f.nthDow, nthDowSpec{weekday: wd, nth: n})
		return nil

	case strings.Contains(part, "/"):
		pieces := strings.SplitN(part, "/", 2)
		step, err := strconv.Atoi(pieces[1])
		if err != nil || step <= 0 {
			return fmt.Errorf("cron: invalid step in %q", part)
		}
		start, end := min, max
		if pieces[0] != "*" {
			if strings.Contains(pieces[0], "-") {
				start, end, err = parseRange(pieces[0], kind, min, max)
				if err != nil {
					return err
				}
			} else {
				start, err = resolveValue(pieces[0], kind, min, max)
				if err != nil {
					return err
				}
				end = max
			}
		}
		for v := start; v <= end; v += step {
			f.values[normalizeDow(v, kind)] = true
		}
		return nil

	case strings.Contains(part, "-"):
		start, end, err := parseRange(part, kind, min, max)
		if err != nil {
			return err
		}
		if start > end {
			return fmt.Errorf("cron: range start > end in %q", part)
		}
		for v := start; v <= end; v++ {
			f.values[normalizeDow(v, kind)] = true
		}
		return nil

	default:
		v, err := resolveValue(part, kind, min, max)
		if err != nil {
			return err
		}
		f.values[normalizeDow(v, kind)] = true
		return nil
	}
}

func parseRange(part, kind string, min, max int) (int, int, error) {
	pieces := strings.SplitN(part, "-", 2)
	start, err := resolveValue(pieces[0], kind, min, max)
	if err != nil {
		return 0, 0, err
	}
	end, err := resolveValue(pieces[1], kind, min, max)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// resolveValue resolves a single numeric-or-name token, validating it lies
// within [min,max] (after normalizing weekday 7 to 0).
func resolveValue(tok, kind string, min, max int) (int, error) {
	lower := strings.ToLower(tok)
	if kind == "month" {
		if v, ok := monthNames[lower]; ok {
			return v, nil
		}
	}
	if kind == "dow" {
		if v, ok := weekdayNames[lower]; ok {
			return v, nil
		}
	}
	v, err := strconv.Atoi(tok)
	if err != nil {
		return 0, fmt.Errorf("cron: invalid %s value %q", kind, tok)
	}
	if kind == "dow" && v == 7 {
		v = 0
	}
	if v < min || v > max {
		return 0, fmt.Errorf("cron: %s value %d out of range [%d,%d]", kind, v, min, max)
	}
	return v, nil
}

func normalizeDow(v int, kind string) int {
	if kind == "dow" && v == 7 {
		return 0
	}
	return v
}
