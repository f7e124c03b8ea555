// Copyright 2025 LingoPilot
// SPDX-License-Identifier: BUSL-1.1

package practice

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"lingopilot/platform/practice/provider"
)

func TestInsertAssessmentAssignsID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	store := NewPostgresAssessmentStore(db)

	mock.ExpectExec("INSERT INTO pronunciation_assessments").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := &AssessmentRecord{
		SessionID:       "sess-1",
		StudentID:       "student-1",
		TutorID:         "tutor-1",
		Language:        "en",
		DurationSeconds: 12,
		Transcript:      "hello world",
		Accuracy:        91,
		Fluency:         88,
		Pronunciation:   90,
		Completeness:    100,
		WordScores:      []provider.WordScore{{Word: "hello", Accuracy: 95}},
		ProblemPhonemes: []string{},
	}

	if err := store.InsertAssessment(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.ID == "" {
		t.Error("expected assigned ID")
	}
	if rec.CreatedAt.IsZero() {
		t.Error("expected assigned timestamp")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestInsertAssessmentWithoutSession(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	store := NewPostgresAssessmentStore(db)

	mock.ExpectExec("INSERT INTO pronunciation_assessments").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := &AssessmentRecord{
		StudentID: "student-1",
		TutorID:   "tutor-1",
		Language:  "es",
	}

	if err := store.InsertAssessment(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestInsertAssessmentInvalidRecord(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	store := NewPostgresAssessmentStore(db)

	if err := store.InsertAssessment(context.Background(), nil); err == nil {
		t.Error("expected error for nil record")
	}
	if err := store.InsertAssessment(context.Background(), &AssessmentRecord{}); err == nil {
		t.Error("expected error for missing student ID")
	}
}
