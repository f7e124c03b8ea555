// Copyright 2025 LingoPilot
// SPDX-License-Identifier: BUSL-1.1

package usage

import (
	"errors"
	"fmt"
)

var (
	// ErrPeriodNotFound is returned when a usage period is not found
	ErrPeriodNotFound = errors.New("usage period not found")

	// ErrInvalidIncrement is returned for a non-positive usage increment
	ErrInvalidIncrement = errors.New("usage increment must be greater than 0")

	// ErrAllowanceExceeded is returned by the repository when a conditional
	// increment's precondition fails. The meter translates it into a
	// *BlockRequiredError with a fresh snapshot.
	ErrAllowanceExceeded = errors.New("allowance exceeded")

	// ErrInvalidInput is returned for general invalid input
	ErrInvalidInput = errors.New("invalid input")

	// ErrDatabaseError is returned for database errors
	ErrDatabaseError = errors.New("database error")
)

// BlockRequiredError is returned when an increment would exceed the current
// allowance and overage is not permitted. It carries a usage snapshot so the
// caller can render an upgrade prompt. The ledger is left untouched.
type BlockRequiredError struct {
	Resource     string // "audio" or "text"
	Requested    int
	Snapshot     Snapshot
	BlocksNeeded int
}

func (e *BlockRequiredError) Error() string {
	return fmt.Sprintf("allowance exhausted for %s: %d unit(s) requested, %d block(s) required",
		e.Resource, e.Requested, e.BlocksNeeded)
}
