// Copyright 2025 LingoPilot
// SPDX-License-Identifier: BUSL-1.1

package usage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const periodColumns = `id, student_id, tutor_id, period_start, period_end,
	   free_audio_seconds, free_text_turns, audio_seconds_used, text_turns_used,
	   blocks_consumed, current_tier_price_cents, created_at, updated_at`

// GetOrCreatePeriod returns the current usage period for a (student, tutor)
// pair, lazily creating it on first use. Creation is idempotent under
// concurrent requests: the insert is ON CONFLICT DO NOTHING and the winner's
// row is re-selected. Allowances are snapshotted at creation.
func (r *PostgresRepository) GetOrCreatePeriod(ctx context.Context, studentID, tutorID string, now time.Time) (*Period, error) {
	periodStart, periodEnd := periodBounds(now)

	insert := `
		INSERT INTO usage_periods (
			id, student_id, tutor_id, period_start, period_end,
			free_audio_seconds, free_text_turns, audio_seconds_used,
			text_turns_used, blocks_consumed, current_tier_price_cents,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 0, 0, 0, $8, $9, $9)
		ON CONFLICT (student_id, tutor_id, period_start) DO NOTHING
	`

	createdAt := now.UTC()
	_, err := r.db.ExecContext(ctx, insert,
		uuid.New().String(), studentID, tutorID, periodStart, periodEnd,
		FreeAudioSeconds, FreeTextTurns, BasePriceCents, createdAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create usage period: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM usage_periods
		WHERE student_id = $1 AND tutor_id = $2 AND period_start = $3
	`, periodColumns)

	period, err := scanPeriod(r.db.QueryRowContext(ctx, query, studentID, tutorID, periodStart))
	if err == sql.ErrNoRows {
		return nil, ErrPeriodNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get usage period: %w", err)
	}

	return period, nil
}

// GetPeriod retrieves a usage period by ID
func (r *PostgresRepository) GetPeriod(ctx context.Context, id string) (*Period, error) {
	query := fmt.Sprintf(`SELECT %s FROM usage_periods WHERE id = $1`, periodColumns)

	period, err := scanPeriod(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrPeriodNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get usage period: %w", err)
	}

	return period, nil
}

// IncrementAudioSeconds applies an audio usage increment in a single
// conditional update. The allowance check lives in the WHERE clause so the
// increment is rejected-or-applied atomically; extraBlocks widens the
// allowance by that many as-yet-unconsumed blocks.
func (r *PostgresRepository) IncrementAudioSeconds(ctx context.Context, periodID string, seconds, extraBlocks int) (*Period, error) {
	if seconds <= 0 {
		return nil, ErrInvalidIncrement
	}

	query := fmt.Sprintf(`
		UPDATE usage_periods
		SET audio_seconds_used = audio_seconds_used + $2, updated_at = $5
		WHERE id = $1
		  AND audio_seconds_used + $2 <= free_audio_seconds + (blocks_consumed + $3) * $4
		RETURNING %s
	`, periodColumns)

	period, err := scanPeriod(r.db.QueryRowContext(ctx, query,
		periodID, seconds, extraBlocks, BlockAudioSeconds, time.Now().UTC()))
	if err == sql.ErrNoRows {
		return nil, r.classifyRejection(ctx, periodID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to increment audio seconds: %w", err)
	}

	return period, nil
}

// IncrementTextTurns applies a text turn increment. Same contract as
// IncrementAudioSeconds.
func (r *PostgresRepository) IncrementTextTurns(ctx context.Context, periodID string, turns, extraBlocks int) (*Period, error) {
	if turns <= 0 {
		return nil, ErrInvalidIncrement
	}

	query := fmt.Sprintf(`
		UPDATE usage_periods
		SET text_turns_used = text_turns_used + $2, updated_at = $5
		WHERE id = $1
		  AND text_turns_used + $2 <= free_text_turns + (blocks_consumed + $3) * $4
		RETURNING %s
	`, periodColumns)

	period, err := scanPeriod(r.db.QueryRowContext(ctx, query,
		periodID, turns, extraBlocks, BlockTextTurns, time.Now().UTC()))
	if err == sql.ErrNoRows {
		return nil, r.classifyRejection(ctx, periodID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to increment text turns: %w", err)
	}

	return period, nil
}

// classifyRejection distinguishes a missing period from an allowance
// precondition failure after a conditional update matched zero rows.
func (r *PostgresRepository) classifyRejection(ctx context.Context, periodID string) error {
	if _, err := r.GetPeriod(ctx, periodID); err != nil {
		return err
	}
	return ErrAllowanceExceeded
}

// ConsumeBlocks advances blocks_consumed after a successful billing call and
// recomputes the period's effective price. Called only by the billing bridge.
func (r *PostgresRepository) ConsumeBlocks(ctx context.Context, periodID string, blocks, priceCentsDelta int) (*Period, error) {
	if blocks <= 0 {
		return nil, ErrInvalidIncrement
	}

	query := fmt.Sprintf(`
		UPDATE usage_periods
		SET blocks_consumed = blocks_consumed + $2,
		    current_tier_price_cents = current_tier_price_cents + $3,
		    updated_at = $4
		WHERE id = $1
		RETURNING %s
	`, periodColumns)

	period, err := scanPeriod(r.db.QueryRowContext(ctx, query,
		periodID, blocks, priceCentsDelta, time.Now().UTC()))
	if err == sql.ErrNoRows {
		return nil, ErrPeriodNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume blocks: %w", err)
	}

	return period, nil
}

// InsertBlockPurchase writes the audit row for a billed overage block
func (r *PostgresRepository) InsertBlockPurchase(ctx context.Context, purchase *BlockPurchase) error {
	if purchase == nil {
		return ErrInvalidInput
	}
	if purchase.ID == "" {
		purchase.ID = uuid.New().String()
	}
	if purchase.CreatedAt.IsZero() {
		purchase.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO practice_block_purchases (
			id, usage_period_id, trigger_type, external_usage_record_id,
			audio_seconds_at_trigger, text_turns_at_trigger, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		purchase.ID, purchase.UsagePeriodID, purchase.TriggerType,
		purchase.ExternalUsageRecordID, purchase.AudioSecondsAtTrigger,
		purchase.TextTurnsAtTrigger, purchase.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert block purchase: %w", err)
	}

	return nil
}

// MonthlyUsage sums consumption over every period the pair opened since
// monthStart. Feeds the monthly margin guard.
func (r *PostgresRepository) MonthlyUsage(ctx context.Context, studentID, tutorID string, monthStart time.Time) (*MonthlyTotals, error) {
	query := `
		SELECT COALESCE(SUM(text_turns_used), 0), COALESCE(SUM(audio_seconds_used), 0)
		FROM usage_periods
		WHERE student_id = $1 AND tutor_id = $2 AND period_start >= $3
	`

	var totals MonthlyTotals
	err := r.db.QueryRowContext(ctx, query, studentID, tutorID, monthStart).Scan(
		&totals.TextTurns, &totals.AudioSeconds,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get monthly usage: %w", err)
	}

	return &totals, nil
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// periodBounds returns the UTC calendar-month window containing now
func periodBounds(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPeriod(row rowScanner) (*Period, error) {
	var p Period
	err := row.Scan(
		&p.ID, &p.StudentID, &p.TutorID, &p.PeriodStart, &p.PeriodEnd,
		&p.FreeAudioSeconds, &p.FreeTextTurns, &p.AudioSecondsUsed,
		&p.TextTurnsUsed, &p.BlocksConsumed, &p.CurrentTierPriceCents,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
