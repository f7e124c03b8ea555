// Copyright 2025 LingoPilot
// SPDX-License-Identifier: BUSL-1.1

// Package usage provides the durable usage ledger for the practice feature.
// It tracks free allowances, consumed audio seconds and text turns, and
// purchased overage blocks per (student, tutor) period, and applies usage
// increments atomically so allowances are never exceeded.
package usage

import "time"

// Block and allowance sizing. Free allowances are snapshotted onto each
// period at creation so later changes don't retroactively alter open periods.
const (
	FreeAudioSeconds = 2700 // 45 minutes
	FreeTextTurns    = 600

	BlockAudioSeconds = 2700 // each block adds 45 minutes of audio
	BlockTextTurns    = 300  // and 300 text turns

	BasePriceCents  = 1500
	BlockPriceCents = 500
)

// Period represents one ledger row: the usage window for a (student, tutor)
// pair with its snapshotted allowances and consumption counters.
type Period struct {
	ID                    string    `json:"id"`
	StudentID             string    `json:"student_id"`
	TutorID               string    `json:"tutor_id"`
	PeriodStart           time.Time `json:"period_start"`
	PeriodEnd             time.Time `json:"period_end"`
	FreeAudioSeconds      int       `json:"free_audio_seconds"`
	FreeTextTurns         int       `json:"free_text_turns"`
	AudioSecondsUsed      int       `json:"audio_seconds_used"`
	TextTurnsUsed         int       `json:"text_turns_used"`
	BlocksConsumed        int       `json:"blocks_consumed"`
	CurrentTierPriceCents int       `json:"current_tier_price_cents"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// AudioAllowance returns the total audio seconds available at the current
// block count.
func (p *Period) AudioAllowance() int {
	return p.FreeAudioSeconds + p.BlocksConsumed*BlockAudioSeconds
}

// TextAllowance returns the total text turns available at the current
// block count.
func (p *Period) TextAllowance() int {
	return p.FreeTextTurns + p.BlocksConsumed*BlockTextTurns
}

// Snapshot is the usage block returned to clients with every practice
// response and with allowance-exhausted errors.
type Snapshot struct {
	TextTurnsUsed          int  `json:"textTurnsUsed"`
	TextTurnsAllowance     int  `json:"textTurnsAllowance"`
	TextTurnsRemaining     int  `json:"textTurnsRemaining"`
	AudioSecondsUsed       int  `json:"audioSecondsUsed"`
	AudioSecondsAllowance  int  `json:"audioSecondsAllowance"`
	AudioSecondsRemaining  int  `json:"audioSecondsRemaining"`
	BlocksConsumed         int  `json:"blocksConsumed"`
	BlockPurchased         bool `json:"blockPurchased"`
	IsFreeUser             bool `json:"isFreeUser"`
	CanBuyBlocks           bool `json:"canBuyBlocks"`
}

// TriggerType identifies which resource overflow caused a block purchase
type TriggerType string

const (
	TriggerAudioOverflow TriggerType = "audio_overflow"
	TriggerTextOverflow  TriggerType = "text_overflow"
)

// BlockPurchase is the audit record written after a successful metered
// billing call. Its absence despite blocks_consumed having advanced is the
// documented reconciliation gap between the ledger and the billing provider.
type BlockPurchase struct {
	ID                    string      `json:"id"`
	UsagePeriodID         string      `json:"usage_period_id"`
	TriggerType           TriggerType `json:"trigger_type"`
	ExternalUsageRecordID string      `json:"external_usage_record_id"`
	AudioSecondsAtTrigger int         `json:"audio_seconds_at_trigger"`
	TextTurnsAtTrigger    int         `json:"text_turns_at_trigger"`
	CreatedAt             time.Time   `json:"created_at"`
}

// MonthlyTotals aggregates consumption across all periods a (student, tutor)
// pair opened in a calendar month. Input to the monthly margin guard.
type MonthlyTotals struct {
	TextTurns    int `json:"text_turns"`
	AudioSeconds int `json:"audio_seconds"`
}

// CommitResult is returned by the metering commit engine after a successful
// increment. NeedsBlock tells the orchestrator that this increment drew on
// overage capacity that still has to be billed.
type CommitResult struct {
	Snapshot    Snapshot
	Period      *Period
	NeedsBlock  bool
	BlocksNeeded int
}

// NewSnapshot builds a client-facing usage snapshot from a ledger row.
func NewSnapshot(p *Period, isFreeUser, canBuyBlocks bool) Snapshot {
	audioAllowance := p.AudioAllowance()
	textAllowance := p.TextAllowance()
	return Snapshot{
		TextTurnsUsed:         p.TextTurnsUsed,
		TextTurnsAllowance:    textAllowance,
		TextTurnsRemaining:    max(0, textAllowance-p.TextTurnsUsed),
		AudioSecondsUsed:      p.AudioSecondsUsed,
		AudioSecondsAllowance: audioAllowance,
		AudioSecondsRemaining: max(0, audioAllowance-p.AudioSecondsUsed),
		BlocksConsumed:        p.BlocksConsumed,
		IsFreeUser:            isFreeUser,
		CanBuyBlocks:          canBuyBlocks,
	}
}
