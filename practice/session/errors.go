// Copyright 2025 LingoPilot
// SPDX-License-Identifier: BUSL-1.1

package session

import "errors"

var (
	// ErrSessionNotFound is returned when a session does not exist
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionEnded is returned when a session has already been closed
	ErrSessionEnded = errors.New("session has ended")

	// ErrMessageLimitReached is returned when a reservation would push
	// message_count past max_messages
	ErrMessageLimitReached = errors.New("message limit reached for this practice session")

	// ErrSessionBusy is returned when the atomic reservation fails for a
	// reason not separately classified, typically a concurrent reservation
	// that just consumed the remaining slots
	ErrSessionBusy = errors.New("session is busy, please retry")

	// ErrModeMismatch is returned when an endpoint is called with a session
	// of the wrong mode
	ErrModeMismatch = errors.New("session mode does not match this endpoint")

	// ErrInvalidInput is returned for general invalid input
	ErrInvalidInput = errors.New("invalid input")
)
