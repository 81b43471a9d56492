package cron

import (
	"log/slog"
	"strings"

	"github.com/adhocore/gronx"
	robfigcron "github.com/robfig/cron/v3"
)

var gronxInstance = gronx.New()

// usesExtendedSyntax reports whether canonical contains any of the L/W/DW/
// N#K extensions neither gronx nor robfig/cron understand.
func usesExtendedSyntax(canonical string) bool {
	return strings.ContainsAny(canonical, "LW#")
}

// crossCheckPlainExpression validates a plain (non-extended) 5-field
// expression against two independent third-party parsers as a sanity check
// on the hand-written evaluator above. Disagreement is logged, never fatal —
// this package's own evaluator remains authoritative.
func crossCheckPlainExpression(canonical string, hasSecond bool) {
	if hasSecond || usesExtendedSyntax(canonical) {
		return
	}

	if !gronxInstance.IsValid(canonical) {
		slog.Warn("cron: gronx rejected an expression this parser accepted", "expr", canonical)
	}

	if _, err := robfigcron.ParseStandard(canonical); err != nil {
		slog.Warn("cron: robfig/cron rejected an expression this parser accepted", "expr", canonical, "error", err)
	}
}
