// Copyright 2025 LingoPilot
// SPDX-License-Identifier: BUSL-1.1

// Package billing provides the overage billing bridge: when a usage commit
// draws on an unbilled block, it records a metered usage event with the
// external billing provider and persists the purchase on the ledger.
package billing

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Biller records metered usage events with the external billing provider
type Biller interface {
	// Name returns the biller implementation name
	Name() string

	// RecordMeteredUsage reports quantity consumed units against the
	// student's block subscription item and returns the provider's usage
	// record ID.
	RecordMeteredUsage(ctx context.Context, subscriptionItemID string, quantity int, ts time.Time) (string, error)
}

// MockBiller is a Biller that fabricates usage record IDs locally. Selected
// at startup when no billing credentials are configured (development and
// tests), never swapped in per request.
type MockBiller struct {
	mu      sync.Mutex
	seq     int
	failErr error

	// Records keeps every reported event for assertions
	Records []MockUsageRecord
}

// MockUsageRecord is one event reported to the MockBiller
type MockUsageRecord struct {
	SubscriptionItemID string
	Quantity           int
	Timestamp          time.Time
}

// NewMockBiller creates a mock biller
func NewMockBiller() *MockBiller {
	return &MockBiller{}
}

// Name returns the biller implementation name
func (b *MockBiller) Name() string {
	return "mock"
}

// Fail makes subsequent RecordMeteredUsage calls return err (nil resets)
func (b *MockBiller) Fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failErr = err
}

// RecordMeteredUsage records the event in memory and returns a synthetic ID
func (b *MockBiller) RecordMeteredUsage(ctx context.Context, subscriptionItemID string, quantity int, ts time.Time) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failErr != nil {
		return "", b.failErr
	}

	b.seq++
	b.Records = append(b.Records, MockUsageRecord{
		SubscriptionItemID: subscriptionItemID,
		Quantity:           quantity,
		Timestamp:          ts,
	})
	return fmt.Sprintf("mock_usage_%d", b.seq), nil
}
