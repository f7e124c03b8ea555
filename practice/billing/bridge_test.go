// Copyright 2025 LingoPilot
// SPDX-License-Identifier: BUSL-1.1

package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lingopilot/platform/practice/usage"
)

// mockBlockStore is an in-memory BlockStore for bridge tests
type mockBlockStore struct {
	period    *usage.Period
	purchases []*usage.BlockPurchase

	consumeErr error
	insertErr  error
}

func (s *mockBlockStore) ConsumeBlocks(ctx context.Context, periodID string, blocks int, priceCentsDelta int) (*usage.Period, error) {
	if s.consumeErr != nil {
		return nil, s.consumeErr
	}
	if s.period == nil || s.period.ID != periodID {
		return nil, usage.ErrPeriodNotFound
	}
	s.period.BlocksConsumed += blocks
	s.period.CurrentTierPriceCents += priceCentsDelta
	copied := *s.period
	return &copied, nil
}

func (s *mockBlockStore) InsertBlockPurchase(ctx context.Context, purchase *usage.BlockPurchase) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.purchases = append(s.purchases, purchase)
	return nil
}

func testPeriod() *usage.Period {
	now := time.Now().UTC()
	return &usage.Period{
		ID:                    "period-1",
		StudentID:             "student-1",
		TutorID:               "tutor-1",
		FreeAudioSeconds:      usage.FreeAudioSeconds,
		FreeTextTurns:         usage.FreeTextTurns,
		AudioSecondsUsed:      2700,
		TextTurnsUsed:         601,
		BlocksConsumed:        0,
		CurrentTierPriceCents: usage.BasePriceCents,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

func TestPurchaseBlocks_Success(t *testing.T) {
	biller := NewMockBiller()
	store := &mockBlockStore{period: testPeriod()}
	bridge := NewBridge(biller, store, nil)

	period := testPeriod()
	updated, purchases, err := bridge.PurchaseBlocks(context.Background(),
		"student-1", period, 1, usage.TriggerTextOverflow, "si_abc123")

	require.NoError(t, err)
	assert.Equal(t, 1, updated.BlocksConsumed)
	assert.Equal(t, usage.BasePriceCents+usage.BlockPriceCents, updated.CurrentTierPriceCents)

	require.Len(t, purchases, 1)
	assert.Equal(t, "period-1", purchases[0].UsagePeriodID)
	assert.Equal(t, usage.TriggerTextOverflow, purchases[0].TriggerType)
	assert.Equal(t, 2700, purchases[0].AudioSecondsAtTrigger)
	assert.Equal(t, 601, purchases[0].TextTurnsAtTrigger)
	assert.NotEmpty(t, purchases[0].ExternalUsageRecordID)

	require.Len(t, biller.Records, 1)
	assert.Equal(t, "si_abc123", biller.Records[0].SubscriptionItemID)
	assert.Equal(t, 1, biller.Records[0].Quantity)
}

func TestPurchaseBlocks_MultipleBlocks(t *testing.T) {
	biller := NewMockBiller()
	store := &mockBlockStore{period: testPeriod()}
	bridge := NewBridge(biller, store, nil)

	updated, purchases, err := bridge.PurchaseBlocks(context.Background(),
		"student-1", testPeriod(), 3, usage.TriggerAudioOverflow, "si_abc123")

	require.NoError(t, err)
	assert.Equal(t, 3, updated.BlocksConsumed)
	assert.Equal(t, usage.BasePriceCents+3*usage.BlockPriceCents, updated.CurrentTierPriceCents)
	assert.Len(t, purchases, 3)

	// One metered usage event covers all blocks purchased in the call
	require.Len(t, biller.Records, 1)
	assert.Equal(t, 3, biller.Records[0].Quantity)
	for _, p := range purchases {
		assert.Equal(t, purchases[0].ExternalUsageRecordID, p.ExternalUsageRecordID)
	}
}

func TestPurchaseBlocks_BillerFailureLeavesCounterUntouched(t *testing.T) {
	biller := NewMockBiller()
	biller.Fail(errors.New("provider down"))
	store := &mockBlockStore{period: testPeriod()}
	bridge := NewBridge(biller, store, nil)

	_, _, err := bridge.PurchaseBlocks(context.Background(),
		"student-1", testPeriod(), 1, usage.TriggerTextOverflow, "si_abc123")

	assert.ErrorIs(t, err, ErrBillingUnavailable)
	assert.Equal(t, 0, store.period.BlocksConsumed)
	assert.Empty(t, store.purchases)
}

func TestPurchaseBlocks_MissingSubscriptionItem(t *testing.T) {
	bridge := NewBridge(NewMockBiller(), &mockBlockStore{period: testPeriod()}, nil)

	_, _, err := bridge.PurchaseBlocks(context.Background(),
		"student-1", testPeriod(), 1, usage.TriggerTextOverflow, "")

	assert.ErrorIs(t, err, ErrMissingSubscriptionItem)
}

func TestPurchaseBlocks_InvalidInput(t *testing.T) {
	bridge := NewBridge(NewMockBiller(), &mockBlockStore{period: testPeriod()}, nil)

	_, _, err := bridge.PurchaseBlocks(context.Background(),
		"student-1", nil, 1, usage.TriggerTextOverflow, "si_abc123")
	assert.ErrorIs(t, err, usage.ErrInvalidInput)

	_, _, err = bridge.PurchaseBlocks(context.Background(),
		"student-1", testPeriod(), 0, usage.TriggerTextOverflow, "si_abc123")
	assert.ErrorIs(t, err, usage.ErrInvalidInput)
}

func TestPurchaseBlocks_ConsumeErrorSurfacesAfterBilling(t *testing.T) {
	biller := NewMockBiller()
	store := &mockBlockStore{period: testPeriod(), consumeErr: errors.New("db down")}
	bridge := NewBridge(biller, store, nil)

	_, _, err := bridge.PurchaseBlocks(context.Background(),
		"student-1", testPeriod(), 1, usage.TriggerTextOverflow, "si_abc123")

	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrBillingUnavailable)
	// The metered event was already reported
	assert.Len(t, biller.Records, 1)
}

func TestPurchaseBlocks_InsertErrorReturnsUpdatedPeriod(t *testing.T) {
	biller := NewMockBiller()
	store := &mockBlockStore{period: testPeriod(), insertErr: errors.New("db down")}
	bridge := NewBridge(biller, store, nil)

	updated, purchases, err := bridge.PurchaseBlocks(context.Background(),
		"student-1", testPeriod(), 1, usage.TriggerTextOverflow, "si_abc123")

	assert.Error(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, 1, updated.BlocksConsumed)
	assert.Empty(t, purchases)
}
