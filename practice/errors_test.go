// Copyright 2025 LingoPilot
// SPDX-License-Identifier: BUSL-1.1

package practice

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"lingopilot/platform/practice/billing"
	"lingopilot/platform/practice/entitlement"
	"lingopilot/platform/practice/session"
	"lingopilot/platform/practice/usage"
)

func TestClassifyErrorPassesThroughAPIError(t *testing.T) {
	original := NewAPIError(http.StatusForbidden, CodeMonthlyLimitExceeded, "Monthly practice limit reached")

	classified := classifyError(original)

	if classified != original {
		t.Errorf("expected pass-through, got %+v", classified)
	}
}

func TestClassifyErrorBlockRequired(t *testing.T) {
	blockErr := &usage.BlockRequiredError{
		Resource:     "text",
		Requested:    1,
		BlocksNeeded: 1,
		Snapshot:     usage.Snapshot{TextTurnsUsed: 600, TextTurnsAllowance: 600},
	}

	classified := classifyError(fmt.Errorf("commit failed: %w", blockErr))

	if classified.Status != http.StatusPaymentRequired {
		t.Errorf("expected 402, got %d", classified.Status)
	}
	if classified.Code != CodeFreeTierExhausted {
		t.Errorf("expected %s, got %s", CodeFreeTierExhausted, classified.Code)
	}
	snapshot, ok := classified.Details.(usage.Snapshot)
	if !ok {
		t.Fatalf("expected snapshot details, got %T", classified.Details)
	}
	if snapshot.TextTurnsUsed != 600 {
		t.Errorf("snapshot not carried: %+v", snapshot)
	}
}

func TestClassifyErrorSentinels(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{entitlement.ErrStudentNotFound, http.StatusNotFound, CodeStudentNotFound},
		{session.ErrSessionNotFound, http.StatusNotFound, CodeSessionNotFound},
		{session.ErrSessionEnded, http.StatusBadRequest, CodeSessionEnded},
		{session.ErrMessageLimitReached, http.StatusBadRequest, CodeMessageLimitReached},
		{session.ErrSessionBusy, http.StatusConflict, CodeSessionBusy},
		{session.ErrModeMismatch, http.StatusBadRequest, CodeModeMismatch},
		{session.ErrInvalidInput, http.StatusBadRequest, CodeInvalidInput},
		{usage.ErrInvalidIncrement, http.StatusBadRequest, CodeInvalidInput},
		{usage.ErrPeriodNotFound, http.StatusInternalServerError, CodeAccountingError},
		{billing.ErrBillingUnavailable, http.StatusBadGateway, CodeBillingUnavailable},
		{billing.ErrMissingSubscriptionItem, http.StatusBadRequest, CodeInvalidInput},
		{errors.New("something else"), http.StatusInternalServerError, CodeInternalError},
	}

	for _, tt := range tests {
		classified := classifyError(fmt.Errorf("wrapped: %w", tt.err))
		if classified.Status != tt.status {
			t.Errorf("%v: expected status %d, got %d", tt.err, tt.status, classified.Status)
		}
		if classified.Code != tt.code {
			t.Errorf("%v: expected code %s, got %s", tt.err, tt.code, classified.Code)
		}
	}
}

func TestWriteErrorEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()

	writeError(rec, "req-123", &APIError{
		Status:  http.StatusTooManyRequests,
		Code:    CodeRateLimitExceeded,
		Message: "Too many requests, slow down",
		Extra:   map[string]interface{}{"limit": 10},
	})

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got %q", ct)
	}

	var envelope map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if envelope["code"] != CodeRateLimitExceeded {
		t.Errorf("expected code in envelope, got %v", envelope["code"])
	}
	if envelope["requestId"] != "req-123" {
		t.Errorf("expected request ID, got %v", envelope["requestId"])
	}
	extra, _ := envelope["extra"].(map[string]interface{})
	if extra["limit"] != float64(10) {
		t.Errorf("expected limit in extra, got %v", extra)
	}
}
