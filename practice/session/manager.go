// Copyright 2025 LingoPilot
// SPDX-License-Identifier: BUSL-1.1

package session

import (
	"context"
	"fmt"

	"lingopilot/platform/shared/logger"
)

// Manager is the reservation manager. It claims chat message slots before a
// provider call and compensates the claim when the call fails, without ever
// clobbering a reservation a later request made.
type Manager struct {
	repo Repository
	log  *logger.Logger
}

// NewManager creates a new reservation manager
func NewManager(repo Repository, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.New("session-manager")
	}
	return &Manager{repo: repo, log: log}
}

// Get returns a session by ID
func (m *Manager) Get(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, ErrInvalidInput
	}
	return m.repo.GetSession(ctx, sessionID)
}

// Reserve atomically claims increment message slots on the session and
// returns a Reservation handle for the later commit-or-rollback decision.
func (m *Manager) Reserve(ctx context.Context, sessionID string, increment int) (*Reservation, error) {
	if sessionID == "" || increment <= 0 {
		return nil, ErrInvalidInput
	}

	newCount, err := m.repo.ReserveSlots(ctx, sessionID, increment)
	if err != nil {
		return nil, err
	}

	return &Reservation{
		SessionID:     sessionID,
		PreviousCount: newCount - increment,
		ReservedCount: newCount,
		Increment:     increment,
	}, nil
}

// Rollback compensates a reservation after a downstream failure. The
// underlying compare-and-swap only applies while message_count still equals
// the reserved value; if another request advanced it the rollback is skipped
// with a warning and the higher, correct value is preserved.
func (m *Manager) Rollback(ctx context.Context, res *Reservation) error {
	if res == nil {
		return ErrInvalidInput
	}

	applied, err := m.repo.RollbackSlots(ctx, res.SessionID, res.ReservedCount, res.Increment)
	if err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}

	if !applied {
		m.log.Warn("", "", "Reservation rollback skipped: counter advanced by another request", map[string]interface{}{
			"session_id":     res.SessionID,
			"reserved_count": res.ReservedCount,
		})
	}

	return nil
}

// RecordTurn persists per-exchange statistics after a successful reply
func (m *Manager) RecordTurn(ctx context.Context, sessionID string, stats TurnStats) error {
	return m.repo.RecordTurnStats(ctx, sessionID, stats)
}

// SaveMessage stores a conversation message and returns its assigned ID
func (m *Manager) SaveMessage(ctx context.Context, msg *Message) (string, error) {
	if msg == nil {
		return "", ErrInvalidInput
	}
	if err := m.repo.InsertMessage(ctx, msg); err != nil {
		return "", err
	}
	return msg.ID, nil
}

// History returns up to limit of the session's newest messages, oldest first
func (m *Manager) History(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if sessionID == "" {
		return nil, ErrInvalidInput
	}
	return m.repo.RecentMessages(ctx, sessionID, limit)
}
