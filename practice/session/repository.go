// Copyright 2025 LingoPilot
// SPDX-License-Identifier: BUSL-1.1

package session

import "context"

// Repository defines the interface for session persistence.
//
// ReserveSlots must be a single atomic conditional update with the
// not-ended and limit checks in the predicate; two racing requests on the
// same session are strictly ordered by it. RollbackSlots is the only
// read-modify-write-shaped operation and is guarded by a compare-and-swap
// on the reserved count.
type Repository interface {
	GetSession(ctx context.Context, id string) (*Session, error)

	// ReserveSlots atomically advances message_count by increment and
	// returns the new count. The classified sentinel errors are
	// ErrSessionNotFound, ErrSessionEnded, ErrMessageLimitReached and
	// ErrSessionBusy.
	ReserveSlots(ctx context.Context, sessionID string, increment int) (int, error)

	// RollbackSlots undoes a reservation only if message_count still equals
	// reservedCount. Returns whether the rollback was applied; a skipped
	// rollback is not an error.
	RollbackSlots(ctx context.Context, sessionID string, reservedCount, increment int) (bool, error)

	// RecordTurnStats accumulates per-exchange statistics after a
	// successful assistant reply.
	RecordTurnStats(ctx context.Context, sessionID string, stats TurnStats) error

	// InsertMessage stores a conversation message, assigning an ID when
	// the caller left it empty.
	InsertMessage(ctx context.Context, msg *Message) error

	// RecentMessages returns up to limit of the session's newest messages,
	// oldest first.
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error)

	Ping(ctx context.Context) error
}
