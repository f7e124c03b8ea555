// Copyright 2025 LingoPilot
// SPDX-License-Identifier: BUSL-1.1

package entitlement

import (
	"context"

	"lingopilot/platform/shared/logger"
)

// Plans that include bundled student practice for the tutor's students
const (
	planProfessional = "professional"
	planStudio       = "studio"
)

// Resolver resolves a student's entitlement from their record and their
// tutor's plan
type Resolver struct {
	repo Repository
	log  *logger.Logger
}

// NewResolver creates an entitlement resolver
func NewResolver(repo Repository, log *logger.Logger) *Resolver {
	if log == nil {
		log = logger.New("entitlement")
	}
	return &Resolver{repo: repo, log: log}
}

// Resolve returns the student's current tier and feature envelope.
// Precedence: the student's own paid subscription, then a paying tutor's
// bundled access, then the free tier.
func (r *Resolver) Resolve(ctx context.Context, studentID string) (*Access, error) {
	if studentID == "" {
		return nil, ErrInvalidInput
	}

	record, err := r.repo.GetStudentRecord(ctx, studentID)
	if err != nil {
		return nil, err
	}

	switch resolvePaidSubscription(record) {
	case TierUnlimited:
		return &Access{
			StudentID:               record.ID,
			Tier:                    TierUnlimited,
			SessionsPerMonth:        UnlimitedSessionsPerMonth,
			TextTurnsPerSession:     UnlimitedTextTurnsPerSession,
			AudioEnabled:            true,
			AdaptiveEnabled:         true,
			VoiceInputEnabled:       true,
			TutorID:                 record.TutorID,
			TutorName:               tutorName(record),
			BlockSubscriptionItemID: record.BlockSubscriptionItemID,
		}, nil
	case TierSolo:
		return &Access{
			StudentID:               record.ID,
			Tier:                    TierSolo,
			SessionsPerMonth:        SoloSessionsPerMonth,
			TextTurnsPerSession:     SoloTextTurnsPerSession,
			AudioEnabled:            true,
			AdaptiveEnabled:         true,
			VoiceInputEnabled:       true,
			BlockSubscriptionItemID: record.BlockSubscriptionItemID,
		}, nil
	}

	if tutorIsPaid(record) {
		return &Access{
			StudentID:           record.ID,
			Tier:                TierBasic,
			SessionsPerMonth:    BasicSessionsPerMonth,
			TextTurnsPerSession: BasicTextTurnsPerSession,
			AudioEnabled:        true,
			TutorID:             record.TutorID,
			TutorName:           tutorName(record),
			ShowUpgradePrompt:   true,
			UpgradePriceCents:   UnlimitedPriceCents,
		}, nil
	}

	access := &Access{
		StudentID:           record.ID,
		Tier:                TierFree,
		SessionsPerMonth:    FreeSessionsPerMonth,
		TextTurnsPerSession: FreeTextTurnsPerSession,
		ShowUpgradePrompt:   true,
		UpgradePriceCents:   SoloPriceCents,
		IsFreeUser:          true,
	}
	if record.TutorID != "" {
		access.TutorID = record.TutorID
		access.TutorName = tutorName(record)
		access.UpgradePriceCents = UnlimitedPriceCents
	}
	return access, nil
}

// resolvePaidSubscription returns the student's own paid tier, or empty
// when the student has none. Legacy base and metered block subscriptions
// map to unlimited.
func resolvePaidSubscription(record *StudentRecord) Tier {
	switch record.PracticeTier {
	case string(TierUnlimited):
		return TierUnlimited
	case string(TierSolo):
		return TierSolo
	}

	if record.PracticeSubscriptionID != "" ||
		record.AISubscriptionID != "" ||
		record.BlockSubscriptionItemID != "" {
		return TierUnlimited
	}

	return ""
}

// tutorIsPaid reports whether the tutor's platform plan bundles practice
// access for their students
func tutorIsPaid(record *StudentRecord) bool {
	if record.TutorID == "" {
		return false
	}
	if record.TutorTier == planStudio {
		return true
	}
	return record.TutorPlan == planProfessional || record.TutorPlan == planStudio
}

func tutorName(record *StudentRecord) string {
	if record.TutorID == "" {
		return ""
	}
	if record.TutorName == "" {
		return "your tutor"
	}
	return record.TutorName
}
