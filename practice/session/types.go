// Copyright 2025 LingoPilot
// SPDX-License-Identifier: BUSL-1.1

// Package session provides the reservation manager for practice chat
// sessions. Message slots are claimed atomically before the slow provider
// call and released by a compensating compare-and-swap rollback on failure.
package session

import "time"

// Mode identifies what kind of practice a session runs
type Mode string

const (
	ModeAudio Mode = "audio"
	ModeText  Mode = "text"
)

// SlotsPerExchange is the reservation increment for one chat exchange:
// one slot for the student message and one for the assistant reply.
const SlotsPerExchange = 2

// DefaultMaxMessages caps sessions whose scenario doesn't set a limit
const DefaultMaxMessages = 20

// Session is one practice conversation. MessageCount is the reservation
// counter: it is advanced before the provider call and is the only field
// subject to rollback.
type Session struct {
	ID                  string     `json:"id"`
	StudentID           string     `json:"student_id"`
	TutorID             string     `json:"tutor_id"`
	Mode                Mode       `json:"mode"`
	Language            string     `json:"language"`
	Level               string     `json:"level"`
	Topic               string     `json:"topic"`
	SystemPrompt        string     `json:"system_prompt,omitempty"`
	MessageCount        int        `json:"message_count"`
	MaxMessages         int        `json:"max_messages"`
	TokensUsed          int        `json:"tokens_used"`
	GrammarErrorsCount  int        `json:"grammar_errors_count"`
	PhoneticErrorsCount int        `json:"phonetic_errors_count"`
	EndedAt             *time.Time `json:"ended_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Ended reports whether the session has been closed
func (s *Session) Ended() bool {
	return s.EndedAt != nil
}

// Message is one stored message in a practice conversation
type Message struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	TokensUsed int       `json:"tokens_used,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// TurnStats carries the per-exchange statistics recorded after a
// successful assistant reply.
type TurnStats struct {
	TokensUsed     int
	GrammarErrors  int
	PhoneticErrors int
}

// Reservation is the handle returned by a successful slot claim. It holds
// both counts so the rollback can compare-and-swap against the value this
// request set.
type Reservation struct {
	SessionID     string
	PreviousCount int
	ReservedCount int
	Increment     int
}
