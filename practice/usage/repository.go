// Copyright 2025 LingoPilot
// SPDX-License-Identifier: BUSL-1.1

package usage

import (
	"context"
	"time"
)

// Repository defines the interface for usage ledger persistence.
//
// The increment operations must be atomic conditional updates: the allowance
// check and the counter mutation happen in a single statement, never as a
// read-modify-write in application code. When the precondition fails they
// return ErrAllowanceExceeded and leave the row untouched.
type Repository interface {
	// Period operations
	GetOrCreatePeriod(ctx context.Context, studentID, tutorID string, now time.Time) (*Period, error)
	GetPeriod(ctx context.Context, id string) (*Period, error)

	// Metering operations. extraBlocks widens the allowance predicate by
	// that many not-yet-consumed blocks (0 = free/consumed allowance only).
	IncrementAudioSeconds(ctx context.Context, periodID string, seconds, extraBlocks int) (*Period, error)
	IncrementTextTurns(ctx context.Context, periodID string, turns, extraBlocks int) (*Period, error)

	// Block operations (called only by the billing bridge)
	ConsumeBlocks(ctx context.Context, periodID string, blocks, priceCentsDelta int) (*Period, error)
	InsertBlockPurchase(ctx context.Context, purchase *BlockPurchase) error

	// Margin-guard source
	MonthlyUsage(ctx context.Context, studentID, tutorID string, monthStart time.Time) (*MonthlyTotals, error)

	// Utility
	Ping(ctx context.Context) error
}
