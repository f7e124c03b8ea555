// Copyright 2025 LingoPilot
// SPDX-License-Identifier: BUSL-1.1

package entitlement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresRepository implements Repository backed by PostgreSQL
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgreSQL entitlement repository
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetStudentRecord returns the student row with the joined tutor profile
func (r *PostgresRepository) GetStudentRecord(ctx context.Context, studentID string) (*StudentRecord, error) {
	if studentID == "" {
		return nil, ErrInvalidInput
	}

	query := `
		SELECT s.id, s.tutor_id, s.practice_tier,
		       s.practice_subscription_id, s.ai_practice_subscription_id,
		       s.ai_practice_block_subscription_item_id,
		       p.full_name, p.tier, p.plan
		FROM students s
		LEFT JOIN profiles p ON p.id = s.tutor_id
		WHERE s.id = $1`

	var (
		record       StudentRecord
		tutorID      sql.NullString
		practiceTier sql.NullString
		practiceSub  sql.NullString
		aiSub        sql.NullString
		blockItem    sql.NullString
		tutorName    sql.NullString
		tutorTier    sql.NullString
		tutorPlan    sql.NullString
	)

	err := r.db.QueryRowContext(ctx, query, studentID).Scan(
		&record.ID, &tutorID, &practiceTier,
		&practiceSub, &aiSub, &blockItem,
		&tutorName, &tutorTier, &tutorPlan,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStudentNotFound
		}
		return nil, fmt.Errorf("failed to load student record: %w", err)
	}

	record.TutorID = tutorID.String
	record.PracticeTier = practiceTier.String
	record.PracticeSubscriptionID = practiceSub.String
	record.AISubscriptionID = aiSub.String
	record.BlockSubscriptionItemID = blockItem.String
	record.TutorName = tutorName.String
	record.TutorTier = tutorTier.String
	record.TutorPlan = tutorPlan.String

	return &record, nil
}

// Ping verifies database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
