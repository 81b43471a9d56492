package cron

import (
	"fmt"
	"time"

	"github.com/google/cel-go/cel"
)

// conditionEnv declares the {weekday, hour} variables available to a
// ScheduledTask's optional CEL condition guard.
var conditionEnv, _ = cel.NewEnv(
	cel.Variable("weekday", cel.IntType),
	cel.Variable("hour", cel.IntType),
)

// EvaluateCondition compiles and runs a CEL predicate over the weekday
// (Sun=0..Sat=6) and hour-of-day of t, returning true if expr is empty (the
// guard is additive and opt-in) or if it evaluates to boolean true.
func EvaluateCondition(expr string, t time.Time) (bool, error) {
	if expr == "" {
		return true, nil
	}
	if conditionEnv == nil {
		return false, fmt.Errorf("cron: condition environment failed to initialize")
	}

	ast, issues := conditionEnv.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return false, fmt.Errorf("cron: invalid condition %q: %w", expr, issues.Err())
	}
	prg, err := conditionEnv.Program(ast)
	if err != nil {
		return false, fmt.Errorf("cron: condition program error: %w", err)
	}

	out, _, err := prg.Eval(map[string]any{
		"weekday": int64(t.Weekday()),
		"hour":    int64(t.Hour()),
	})
	if err != nil {
		return false, fmt.Errorf("cron: condition eval error: %w", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("cron: condition %q did not evaluate to a bool", expr)
	}
	return result, nil
}
