// Copyright 2025 LingoPilot
// SPDX-License-Identifier: BUSL-1.1

package practice

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"lingopilot/platform/practice/provider"
)

// AssessmentRecord is one persisted pronunciation assessment
type AssessmentRecord struct {
	ID              string               `json:"id"`
	SessionID       string               `json:"session_id,omitempty"`
	StudentID       string               `json:"student_id"`
	TutorID         string               `json:"tutor_id"`
	Language        string               `json:"language"`
	DurationSeconds int                  `json:"duration_seconds"`
	Transcript      string               `json:"transcript"`
	Accuracy        float64              `json:"accuracy"`
	Fluency         float64              `json:"fluency"`
	Pronunciation   float64              `json:"pronunciation"`
	Completeness    float64              `json:"completeness"`
	WordScores      []provider.WordScore `json:"word_scores"`
	ProblemPhonemes []string             `json:"problem_phonemes"`
	CreatedAt       time.Time            `json:"created_at"`
}

// AssessmentStore persists pronunciation assessments for tutor review
type AssessmentStore interface {
	InsertAssessment(ctx context.Context, rec *AssessmentRecord) error
}

// PostgresAssessmentStore implements AssessmentStore using PostgreSQL
type PostgresAssessmentStore struct {
	db *sql.DB
}

// NewPostgresAssessmentStore creates a new PostgreSQL assessment store
func NewPostgresAssessmentStore(db *sql.DB) *PostgresAssessmentStore {
	return &PostgresAssessmentStore{db: db}
}

// InsertAssessment stores an assessment row. Word scores and problem
// phonemes are serialized as JSON columns.
func (s *PostgresAssessmentStore) InsertAssessment(ctx context.Context, rec *AssessmentRecord) error {
	if rec == nil || rec.StudentID == "" {
		return fmt.Errorf("invalid assessment record")
	}

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	wordScores, err := json.Marshal(rec.WordScores)
	if err != nil {
		return fmt.Errorf("failed to encode word scores: %w", err)
	}
	problemPhonemes, err := json.Marshal(rec.ProblemPhonemes)
	if err != nil {
		return fmt.Errorf("failed to encode problem phonemes: %w", err)
	}

	query := `
		INSERT INTO pronunciation_assessments
			(id, session_id, student_id, tutor_id, language, duration_seconds,
			 transcript, accuracy_score, fluency_score, pronunciation_score,
			 completeness_score, word_scores, problem_phonemes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	var sessionID interface{}
	if rec.SessionID != "" {
		sessionID = rec.SessionID
	}

	_, err = s.db.ExecContext(ctx, query,
		rec.ID, sessionID, rec.StudentID, rec.TutorID, rec.Language,
		rec.DurationSeconds, rec.Transcript, rec.Accuracy, rec.Fluency,
		rec.Pronunciation, rec.Completeness, wordScores, problemPhonemes,
		rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert assessment: %w", err)
	}

	return nil
}

// MockAssessmentStore is an in-memory AssessmentStore for tests and local
// development
type MockAssessmentStore struct {
	mu      sync.Mutex
	failErr error

	Records []*AssessmentRecord
}

// NewMockAssessmentStore creates an empty mock store
func NewMockAssessmentStore() *MockAssessmentStore {
	return &MockAssessmentStore{}
}

// Fail makes subsequent inserts return err
func (s *MockAssessmentStore) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

// InsertAssessment records the assessment in memory
func (s *MockAssessmentStore) InsertAssessment(_ context.Context, rec *AssessmentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.Records = append(s.Records, rec)
	return nil
}
