// Copyright 2025 LingoPilot
// SPDX-License-Identifier: BUSL-1.1

package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lingopilot/platform/shared/logger"
)

// Meter is the metering commit engine. It resolves usage periods and applies
// audio/text increments against the ledger, deciding per commit whether the
// increment drew on overage capacity that still has to be billed.
//
// Meter never mutates blocks_consumed itself; that is the billing bridge's
// job after the external metered-billing call succeeds.
type Meter struct {
	repo Repository
	log  *logger.Logger
}

// NewMeter creates a new metering commit engine
func NewMeter(repo Repository, log *logger.Logger) *Meter {
	if log == nil {
		log = logger.New("usage-meter")
	}
	return &Meter{repo: repo, log: log}
}

// ResolvePeriod returns the current usage period for a (student, tutor)
// pair, creating it on first use.
func (m *Meter) ResolvePeriod(ctx context.Context, studentID, tutorID string) (*Period, error) {
	if studentID == "" || tutorID == "" {
		return nil, ErrInvalidInput
	}
	return m.repo.GetOrCreatePeriod(ctx, studentID, tutorID, time.Now())
}

// CommitAudioSeconds commits an audio usage increment. With allowOverage the
// increment may draw on not-yet-billed blocks; the result's NeedsBlock then
// tells the caller to run the billing bridge. Without it, exceeding the
// current allowance rejects the whole increment with *BlockRequiredError.
// Exactly reaching the boundary succeeds.
func (m *Meter) CommitAudioSeconds(ctx context.Context, periodID string, seconds int, allowOverage bool) (*CommitResult, error) {
	if seconds <= 0 {
		return nil, ErrInvalidIncrement
	}

	extraBlocks := 0
	if allowOverage {
		n, err := m.blocksToCover(ctx, periodID, "audio", seconds)
		if err != nil {
			return nil, err
		}
		extraBlocks = n
	}

	period, err := m.repo.IncrementAudioSeconds(ctx, periodID, seconds, extraBlocks)
	if errors.Is(err, ErrAllowanceExceeded) {
		return nil, m.blockRequired(ctx, periodID, "audio", seconds)
	}
	if err != nil {
		return nil, fmt.Errorf("audio commit failed: %w", err)
	}

	return m.result(period, period.AudioSecondsUsed-period.AudioAllowance(), BlockAudioSeconds), nil
}

// CommitTextTurn commits a single text turn. Same contract as
// CommitAudioSeconds.
func (m *Meter) CommitTextTurn(ctx context.Context, periodID string, allowOverage bool) (*CommitResult, error) {
	extraBlocks := 0
	if allowOverage {
		n, err := m.blocksToCover(ctx, periodID, "text", 1)
		if err != nil {
			return nil, err
		}
		extraBlocks = n
	}

	period, err := m.repo.IncrementTextTurns(ctx, periodID, 1, extraBlocks)
	if errors.Is(err, ErrAllowanceExceeded) {
		return nil, m.blockRequired(ctx, periodID, "text", 1)
	}
	if err != nil {
		return nil, fmt.Errorf("text commit failed: %w", err)
	}

	return m.result(period, period.TextTurnsUsed-period.TextAllowance(), BlockTextTurns), nil
}

// MonthlyUsage reports consumption across all periods the pair opened in the
// calendar month containing now.
func (m *Meter) MonthlyUsage(ctx context.Context, studentID, tutorID string, now time.Time) (*MonthlyTotals, error) {
	monthStart, _ := periodBounds(now)
	return m.repo.MonthlyUsage(ctx, studentID, tutorID, monthStart)
}

// blocksToCover computes how many additional blocks the pending increment
// needs on top of what the period has already consumed. Advisory only: the
// conditional update re-checks the allowance atomically.
func (m *Meter) blocksToCover(ctx context.Context, periodID, resource string, delta int) (int, error) {
	period, err := m.repo.GetPeriod(ctx, periodID)
	if err != nil {
		return 0, err
	}

	var overflow, blockSize int
	switch resource {
	case "audio":
		overflow = period.AudioSecondsUsed + delta - period.AudioAllowance()
		blockSize = BlockAudioSeconds
	default:
		overflow = period.TextTurnsUsed + delta - period.TextAllowance()
		blockSize = BlockTextTurns
	}
	if overflow <= 0 {
		return 0, nil
	}
	return ceilDiv(overflow, blockSize), nil
}

// blockRequired builds the caller-visible allowance-exhausted error with a
// fresh snapshot. The rejected increment left the ledger untouched.
func (m *Meter) blockRequired(ctx context.Context, periodID, resource string, requested int) error {
	period, err := m.repo.GetPeriod(ctx, periodID)
	if err != nil {
		return fmt.Errorf("failed to read period after rejection: %w", err)
	}

	var overflow, blockSize int
	switch resource {
	case "audio":
		overflow = period.AudioSecondsUsed + requested - period.AudioAllowance()
		blockSize = BlockAudioSeconds
	default:
		overflow = period.TextTurnsUsed + requested - period.TextAllowance()
		blockSize = BlockTextTurns
	}

	blocksNeeded := 1
	if overflow > 0 {
		blocksNeeded = ceilDiv(overflow, blockSize)
	}

	m.log.Warn(period.StudentID, "", "Usage increment rejected: allowance exhausted", map[string]interface{}{
		"period_id":     periodID,
		"resource":      resource,
		"requested":     requested,
		"blocks_needed": blocksNeeded,
	})

	return &BlockRequiredError{
		Resource:     resource,
		Requested:    requested,
		Snapshot:     NewSnapshot(period, false, false),
		BlocksNeeded: blocksNeeded,
	}
}

func (m *Meter) result(period *Period, overflow, blockSize int) *CommitResult {
	res := &CommitResult{
		Snapshot: NewSnapshot(period, false, false),
		Period:   period,
	}
	if overflow > 0 {
		res.NeedsBlock = true
		res.BlocksNeeded = ceilDiv(overflow, blockSize)
	}
	return res
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
