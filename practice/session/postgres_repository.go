// Copyright 2025 LingoPilot
// SPDX-License-Identifier: BUSL-1.1

package session

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

const sessionColumns = `id, student_id, tutor_id, mode, language, level, topic,
	   system_prompt, message_count, max_messages, tokens_used,
	   grammar_errors_count, phonetic_errors_count, ended_at, created_at, updated_at`

// GetSession retrieves a session by ID
func (r *PostgresRepository) GetSession(ctx context.Context, id string) (*Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM practice_sessions WHERE id = $1`, sessionColumns)

	var s Session
	var systemPrompt sql.NullString
	var endedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.StudentID, &s.TutorID, &s.Mode, &s.Language, &s.Level,
		&s.Topic, &systemPrompt, &s.MessageCount, &s.MaxMessages,
		&s.TokensUsed, &s.GrammarErrorsCount, &s.PhoneticErrorsCount,
		&endedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	s.SystemPrompt = systemPrompt.String
	if endedAt.Valid {
		t := endedAt.Time
		s.EndedAt = &t
	}

	return &s, nil
}

// ReserveSlots atomically claims increment message slots. The precondition
// (session open, limit not exceeded) lives in the WHERE clause; a zero-row
// result is classified by re-reading the session.
func (r *PostgresRepository) ReserveSlots(ctx context.Context, sessionID string, increment int) (int, error) {
	if increment <= 0 {
		return 0, ErrInvalidInput
	}

	query := `
		UPDATE practice_sessions
		SET message_count = message_count + $2, updated_at = $3
		WHERE id = $1
		  AND ended_at IS NULL
		  AND message_count + $2 <= max_messages
		RETURNING message_count
	`

	var newCount int
	err := r.db.QueryRowContext(ctx, query, sessionID, increment, time.Now().UTC()).Scan(&newCount)
	if err == sql.ErrNoRows {
		return 0, r.classifyReservationFailure(ctx, sessionID, increment)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to reserve slots: %w", err)
	}

	return newCount, nil
}

// classifyReservationFailure maps a zero-row reservation to the sentinel the
// caller can act on. The re-read races with other writers, so an otherwise
// unexplained failure is reported as ErrSessionBusy.
func (r *PostgresRepository) classifyReservationFailure(ctx context.Context, sessionID string, increment int) error {
	s, err := r.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if s.Ended() {
		return ErrSessionEnded
	}
	if s.MessageCount+increment > s.MaxMessages {
		return ErrMessageLimitReached
	}
	return ErrSessionBusy
}

// RollbackSlots compensates a reservation with a compare-and-swap: the
// decrement applies only while message_count still equals the value this
// request reserved. A concurrent reservation that advanced the counter
// makes the rollback a no-op.
func (r *PostgresRepository) RollbackSlots(ctx context.Context, sessionID string, reservedCount, increment int) (bool, error) {
	query := `
		UPDATE practice_sessions
		SET message_count = message_count - $3, updated_at = $4
		WHERE id = $1 AND message_count = $2
	`

	result, err := r.db.ExecContext(ctx, query, sessionID, reservedCount, increment, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to rollback slots: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check affected rows: %w", err)
	}

	return rows > 0, nil
}

// RecordTurnStats accumulates tokens and correction counts on the session
func (r *PostgresRepository) RecordTurnStats(ctx context.Context, sessionID string, stats TurnStats) error {
	query := `
		UPDATE practice_sessions
		SET tokens_used = tokens_used + $2,
		    grammar_errors_count = grammar_errors_count + $3,
		    phonetic_errors_count = phonetic_errors_count + $4,
		    updated_at = $5
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, sessionID,
		stats.TokensUsed, stats.GrammarErrors, stats.PhoneticErrors, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record turn stats: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rows == 0 {
		return ErrSessionNotFound
	}

	return nil
}

// InsertMessage stores a conversation message
func (r *PostgresRepository) InsertMessage(ctx context.Context, msg *Message) error {
	if msg == nil || msg.SessionID == "" || msg.Role == "" {
		return ErrInvalidInput
	}

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO practice_messages (id, session_id, role, content, tokens_used, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		msg.ID, msg.SessionID, msg.Role, msg.Content, msg.TokensUsed, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	return nil
}

// RecentMessages returns up to limit of the session's newest messages,
// oldest first
func (r *PostgresRepository) RecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		return nil, ErrInvalidInput
	}

	query := `
		SELECT id, session_id, role, content, tokens_used, created_at
		FROM practice_messages
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.TokensUsed, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	// Newest-first from the query, flipped to conversation order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
