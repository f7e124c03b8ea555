// Copyright 2025 LingoPilot
// SPDX-License-Identifier: BUSL-1.1

package billing

import (
	"context"
	"fmt"
	"time"

	"lingopilot/platform/practice/usage"
	"lingopilot/platform/shared/logger"
)

// BlockStore persists block purchases. Satisfied by usage.Repository.
type BlockStore interface {
	ConsumeBlocks(ctx context.Context, periodID string, blocks int, priceCentsDelta int) (*usage.Period, error)
	InsertBlockPurchase(ctx context.Context, purchase *usage.BlockPurchase) error
}

// Bridge charges overage blocks: it reports metered usage to the billing
// provider, then advances the period's consumed block counter and writes the
// purchase ledger row. The biller call comes first so a billing failure never
// leaves a consumed block unbilled; a ledger write failure after a successful
// biller call is logged and surfaces as an error to the caller.
type Bridge struct {
	biller Biller
	store  BlockStore
	log    *logger.Logger
}

// NewBridge creates a billing bridge
func NewBridge(biller Biller, store BlockStore, log *logger.Logger) *Bridge {
	if log == nil {
		log = logger.New("billing-bridge")
	}
	return &Bridge{
		biller: biller,
		store:  store,
		log:    log,
	}
}

// PurchaseBlocks buys blocks overflow blocks for the period. The trigger
// names which resource overflowed, and period carries the usage counters at
// the time of the triggering commit for the ledger row. Returns the updated
// period and the recorded purchases.
func (b *Bridge) PurchaseBlocks(ctx context.Context, studentID string, period *usage.Period, blocks int, trigger usage.TriggerType, subscriptionItemID string) (*usage.Period, []*usage.BlockPurchase, error) {
	if period == nil {
		return nil, nil, usage.ErrInvalidInput
	}
	if blocks <= 0 {
		return nil, nil, fmt.Errorf("%w: blocks must be positive", usage.ErrInvalidInput)
	}
	if subscriptionItemID == "" {
		return nil, nil, ErrMissingSubscriptionItem
	}

	recordID, err := b.biller.RecordMeteredUsage(ctx, subscriptionItemID, blocks, time.Now())
	if err != nil {
		b.log.Error(studentID, "", "Failed to record metered usage", map[string]interface{}{
			"biller":    b.biller.Name(),
			"period_id": period.ID,
			"error":     err.Error(),
		})
		return nil, nil, fmt.Errorf("%w: %v", ErrBillingUnavailable, err)
	}

	updated, err := b.store.ConsumeBlocks(ctx, period.ID, blocks, blocks*usage.BlockPriceCents)
	if err != nil {
		b.log.Error(studentID, "", "Failed to advance consumed block counter after billing", map[string]interface{}{
			"period_id":       period.ID,
			"usage_record_id": recordID,
			"error":           err.Error(),
		})
		return nil, nil, err
	}

	purchases := make([]*usage.BlockPurchase, 0, blocks)
	for i := 0; i < blocks; i++ {
		purchase := &usage.BlockPurchase{
			UsagePeriodID:         period.ID,
			TriggerType:           trigger,
			ExternalUsageRecordID: recordID,
			AudioSecondsAtTrigger: period.AudioSecondsUsed,
			TextTurnsAtTrigger:    period.TextTurnsUsed,
		}
		if err := b.store.InsertBlockPurchase(ctx, purchase); err != nil {
			b.log.Error(studentID, "", "Failed to write block purchase ledger row", map[string]interface{}{
				"period_id":       period.ID,
				"usage_record_id": recordID,
				"error":           err.Error(),
			})
			return updated, purchases, err
		}
		purchases = append(purchases, purchase)
	}

	b.log.Info(studentID, "", "Purchased overage blocks", map[string]interface{}{
		"period_id":       period.ID,
		"blocks":          blocks,
		"trigger":         string(trigger),
		"usage_record_id": recordID,
	})

	return updated, purchases, nil
}
