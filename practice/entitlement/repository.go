// Copyright 2025 LingoPilot
// SPDX-License-Identifier: BUSL-1.1

package entitlement

import "context"

// Repository loads student records for entitlement resolution
type Repository interface {
	// GetStudentRecord returns the student row with the joined tutor
	// profile, or ErrStudentNotFound
	GetStudentRecord(ctx context.Context, studentID string) (*StudentRecord, error)

	// Ping verifies database connectivity
	Ping(ctx context.Context) error
}
