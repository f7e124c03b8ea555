// Copyright 2025 LingoPilot
// SPDX-License-Identifier: BUSL-1.1

package practice

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret")

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func TestValidateStudentToken(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{
		"user_id": "student-1",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})

	studentID, err := validateStudentToken(token, testSecret)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if studentID != "student-1" {
		t.Errorf("expected student-1, got %q", studentID)
	}
}

func TestValidateStudentTokenExpired(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{
		"user_id": "student-1",
		"exp":     time.Now().Add(-time.Hour).Unix(),
	})

	if _, err := validateStudentToken(token, testSecret); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestValidateStudentTokenMissingClaim(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})

	if _, err := validateStudentToken(token, testSecret); err == nil {
		t.Error("expected error for missing user_id claim")
	}
}

func TestValidateStudentTokenWrongSecret(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "student-1",
	}).SignedString([]byte("other-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	if _, err := validateStudentToken(token, testSecret); err == nil {
		t.Error("expected error for wrong signing secret")
	}
}

func TestAuthMiddlewareInjectsStudentID(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{"user_id": "student-9"})

	var gotStudentID, gotRequestID string
	handler := authMiddleware(testSecret, func(w http.ResponseWriter, r *http.Request) {
		gotStudentID = studentIDFromContext(r.Context())
		gotRequestID = requestIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("POST", "/api/v1/practice/chat", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-ID", "req-7")
	rec := httptest.NewRecorder()

	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotStudentID != "student-9" {
		t.Errorf("expected student-9 in context, got %q", gotStudentID)
	}
	if gotRequestID != "req-7" {
		t.Errorf("expected propagated request ID, got %q", gotRequestID)
	}
}

func TestAuthMiddlewareRejectsMissingHeader(t *testing.T) {
	handler := authMiddleware(testSecret, func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	})

	req := httptest.NewRequest("POST", "/api/v1/practice/chat", nil)
	rec := httptest.NewRecorder()

	handler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestAuthMiddlewareRejectsInvalidToken(t *testing.T) {
	handler := authMiddleware(testSecret, func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	})

	req := httptest.NewRequest("POST", "/api/v1/practice/chat", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()

	handler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}
