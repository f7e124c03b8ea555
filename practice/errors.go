// Copyright 2025 LingoPilot
// SPDX-License-Identifier: BUSL-1.1

package practice

import (
	"encoding/json"
	"errors"
	"net/http"

	"lingopilot/platform/practice/billing"
	"lingopilot/platform/practice/entitlement"
	"lingopilot/platform/practice/session"
	"lingopilot/platform/practice/usage"
)

// Error codes carried in the response envelope
const (
	CodeInvalidInput            = "INVALID_INPUT"
	CodeUnauthorized            = "UNAUTHORIZED"
	CodeForbidden               = "FORBIDDEN"
	CodeStudentNotFound         = "STUDENT_NOT_FOUND"
	CodeRateLimitExceeded       = "RATE_LIMIT_EXCEEDED"
	CodeMonthlyLimitExceeded    = "MONTHLY_LIMIT_EXCEEDED"
	CodeFreeTierExhausted       = "FREE_TIER_EXHAUSTED"
	CodeBlockRequired           = "BLOCK_REQUIRED"
	CodeSessionNotFound         = "SESSION_NOT_FOUND"
	CodeSessionEnded            = "SESSION_ENDED"
	CodeMessageLimitReached     = "MESSAGE_LIMIT_REACHED"
	CodeSessionBusy             = "SESSION_BUSY"
	CodeSessionTextLimitReached = "SESSION_TEXT_LIMIT_REACHED"
	CodeModeMismatch            = "MODE_MISMATCH"
	CodePayloadTooLarge         = "PAYLOAD_TOO_LARGE"
	CodeProviderError           = "PROVIDER_ERROR"
	CodeAccountingError         = "ACCOUNTING_ERROR"
	CodeBillingUnavailable      = "BILLING_UNAVAILABLE"
	CodeServiceUnavailable      = "SERVICE_UNAVAILABLE"
	CodeInternalError           = "INTERNAL_ERROR"
)

// APIError is a caller-visible failure with an HTTP status and stable code.
// Details carries structured payloads the client renders (usage snapshots,
// upgrade prompts); Extra carries flat metadata like {used, cap}.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details interface{}
	Extra   map[string]interface{}
}

func (e *APIError) Error() string {
	return e.Message
}

// NewAPIError creates an APIError with no details
func NewAPIError(status int, code, message string) *APIError {
	return &APIError{Status: status, Code: code, Message: message}
}

// errorEnvelope is the wire shape of every error response
type errorEnvelope struct {
	Error     string                 `json:"error"`
	Code      string                 `json:"code"`
	RequestID string                 `json:"requestId"`
	Details   interface{}            `json:"details,omitempty"`
	Extra     map[string]interface{} `json:"extra,omitempty"`
}

// classifyError maps any error surfaced by the orchestration flow to an
// APIError. Errors that are already APIErrors pass through.
func classifyError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var blockErr *usage.BlockRequiredError
	if errors.As(err, &blockErr) {
		return &APIError{
			Status:  http.StatusPaymentRequired,
			Code:    CodeFreeTierExhausted,
			Message: blockErr.Error(),
			Details: blockErr.Snapshot,
		}
	}

	switch {
	case errors.Is(err, entitlement.ErrStudentNotFound):
		return NewAPIError(http.StatusNotFound, CodeStudentNotFound, "Student not found")
	case errors.Is(err, session.ErrSessionNotFound):
		return NewAPIError(http.StatusNotFound, CodeSessionNotFound, "Session not found")
	case errors.Is(err, session.ErrSessionEnded):
		return NewAPIError(http.StatusBadRequest, CodeSessionEnded, "Session has ended")
	case errors.Is(err, session.ErrMessageLimitReached):
		return NewAPIError(http.StatusBadRequest, CodeMessageLimitReached, "Session message limit reached")
	case errors.Is(err, session.ErrSessionBusy):
		return NewAPIError(http.StatusConflict, CodeSessionBusy, "Session is handling another request, try again")
	case errors.Is(err, session.ErrModeMismatch):
		return NewAPIError(http.StatusBadRequest, CodeModeMismatch, "Session mode does not match this endpoint")
	case errors.Is(err, session.ErrInvalidInput),
		errors.Is(err, usage.ErrInvalidInput),
		errors.Is(err, usage.ErrInvalidIncrement),
		errors.Is(err, entitlement.ErrInvalidInput):
		return NewAPIError(http.StatusBadRequest, CodeInvalidInput, "Invalid request")
	case errors.Is(err, usage.ErrPeriodNotFound):
		return NewAPIError(http.StatusInternalServerError, CodeAccountingError, "Unable to track usage right now")
	case errors.Is(err, billing.ErrBillingUnavailable):
		return NewAPIError(http.StatusBadGateway, CodeBillingUnavailable, "Unable to bill the add-on block right now, try again")
	case errors.Is(err, billing.ErrMissingSubscriptionItem):
		return NewAPIError(http.StatusBadRequest, CodeInvalidInput, "Subscription is missing a metered block item")
	}

	return NewAPIError(http.StatusInternalServerError, CodeInternalError, "Internal server error")
}

// writeError renders the error envelope with the mapped status code
func writeError(w http.ResponseWriter, requestID string, err error) {
	apiErr := classifyError(err)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Error:     apiErr.Message,
		Code:      apiErr.Code,
		RequestID: requestID,
		Details:   apiErr.Details,
		Extra:     apiErr.Extra,
	})
}

// writeJSON renders a success payload
func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
