// Copyright 2025 LingoPilot
// SPDX-License-Identifier: BUSL-1.1

package billing

import "errors"

var (
	// ErrBillingUnavailable indicates the billing provider could not be
	// reached or rejected the usage record
	ErrBillingUnavailable = errors.New("billing provider unavailable")

	// ErrMissingSubscriptionItem indicates the student has no block
	// subscription item to bill metered usage against
	ErrMissingSubscriptionItem = errors.New("block subscription item not configured")
)
