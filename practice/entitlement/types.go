// Copyright 2025 LingoPilot
// SPDX-License-Identifier: BUSL-1.1

// Package entitlement resolves a student's practice tier and feature
// envelope. Valid students always have access; the tier determines limits,
// whether audio is enabled, and which upgrade to offer.
package entitlement

import "errors"

// Tier is a student's practice tier
type Tier string

const (
	// TierFree applies when neither the student nor their tutor pays
	TierFree Tier = "free"

	// TierBasic is granted by a paying tutor's plan
	TierBasic Tier = "basic"

	// TierUnlimited is the student's own paid subscription under a tutor
	TierUnlimited Tier = "unlimited"

	// TierSolo is the student's own paid subscription without a tutor
	TierSolo Tier = "solo"
)

// Per-tier feature envelopes. SessionsPerMonth 0 means uncapped.
const (
	FreeSessionsPerMonth    = 5
	FreeTextTurnsPerSession = 20

	BasicSessionsPerMonth    = 20
	BasicTextTurnsPerSession = 30

	UnlimitedSessionsPerMonth    = 0
	UnlimitedTextTurnsPerSession = 50

	SoloSessionsPerMonth    = 0
	SoloTextTurnsPerSession = 50

	// Upgrade prices shown with the upgrade prompt
	UnlimitedPriceCents = 1500
	SoloPriceCents      = 2900
)

var (
	// ErrStudentNotFound indicates no student record exists for the ID
	ErrStudentNotFound = errors.New("student not found")

	// ErrInvalidInput indicates a missing or malformed argument
	ErrInvalidInput = errors.New("invalid input")
)

// Access is a student's resolved practice entitlement
type Access struct {
	StudentID string `json:"studentId"`
	Tier      Tier   `json:"tier"`

	// SessionsPerMonth caps new sessions per calendar month, 0 = uncapped
	SessionsPerMonth    int  `json:"sessionsPerMonth"`
	TextTurnsPerSession int  `json:"textTurnsPerSession"`
	AudioEnabled        bool `json:"audioEnabled"`
	AdaptiveEnabled     bool `json:"adaptiveEnabled"`
	VoiceInputEnabled   bool `json:"voiceInputEnabled"`

	TutorID   string `json:"tutorId,omitempty"`
	TutorName string `json:"tutorName,omitempty"`

	ShowUpgradePrompt bool `json:"showUpgradePrompt"`
	// UpgradePriceCents is zero when no upgrade applies
	UpgradePriceCents int `json:"upgradePriceCents,omitempty"`

	// IsFreeUser is true only for TierFree
	IsFreeUser bool `json:"isFreeUser"`

	// BlockSubscriptionItemID bills overage blocks; empty when the student
	// cannot buy blocks
	BlockSubscriptionItemID string `json:"-"`
}

// CanBuyBlocks reports whether overage blocks can be billed for the student
func (a *Access) CanBuyBlocks() bool {
	return a.BlockSubscriptionItemID != ""
}

// StudentRecord is the raw student row with the joined tutor profile
type StudentRecord struct {
	ID                      string
	TutorID                 string
	PracticeTier            string
	PracticeSubscriptionID  string
	AISubscriptionID        string
	BlockSubscriptionItemID string

	TutorName string
	TutorTier string
	TutorPlan string
}
