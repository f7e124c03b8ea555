// Copyright 2025 LingoPilot
// SPDX-License-Identifier: BUSL-1.1

package limiter

import (
	"context"
	"time"

	"lingopilot/platform/practice/usage"
)

// DefaultMonthlyCap is the margin guard's hard ceiling in usage units
// (text turns plus started audio minutes), independent of how many blocks
// the student purchased.
const DefaultMonthlyCap = 2000

// MonthlyUsageSource reports a (student, tutor) pair's consumption for the
// calendar month containing now. Implemented by usage.Meter.
type MonthlyUsageSource interface {
	MonthlyUsage(ctx context.Context, studentID, tutorID string, now time.Time) (*usage.MonthlyTotals, error)
}

// CapDecision is the outcome of a monthly cap check. Used and Cap ride
// along so denials can report how far over the student is.
type CapDecision struct {
	Allowed bool `json:"allowed"`
	Used    int  `json:"used"`
	Cap     int  `json:"cap"`
}

// MarginGuard is the monthly hard cap protecting against runaway cost
// regardless of purchased blocks. A read-only check: denial touches
// nothing.
type MarginGuard struct {
	source MonthlyUsageSource
	cap    int
}

// NewMarginGuard creates a margin guard. cap <= 0 selects the default.
func NewMarginGuard(source MonthlyUsageSource, cap int) *MarginGuard {
	if cap <= 0 {
		cap = DefaultMonthlyCap
	}
	return &MarginGuard{source: source, cap: cap}
}

// Check evaluates the pair's usage against the monthly cap. One usage unit
// is a text turn or a started minute of audio.
func (g *MarginGuard) Check(ctx context.Context, studentID, tutorID string) (*CapDecision, error) {
	totals, err := g.source.MonthlyUsage(ctx, studentID, tutorID, time.Now())
	if err != nil {
		return nil, err
	}

	used := totals.TextTurns + (totals.AudioSeconds+59)/60
	return &CapDecision{
		Allowed: used < g.cap,
		Used:    used,
		Cap:     g.cap,
	}, nil
}
