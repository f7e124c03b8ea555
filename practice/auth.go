// Copyright 2025 LingoPilot
// SPDX-License-Identifier: BUSL-1.1

package practice

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	studentIDKey contextKey = "student_id"
	requestIDKey contextKey = "request_id"
)

// validateStudentToken parses and verifies a bearer token and extracts the
// student ID from the user_id claim
func validateStudentToken(tokenString string, secret []byte) (string, error) {
	if tokenString == "" {
		return "", fmt.Errorf("token required")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("invalid token: %v", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}

	studentID, _ := claims["user_id"].(string)
	if studentID == "" {
		return "", fmt.Errorf("token missing user_id claim")
	}

	return studentID, nil
}

// authMiddleware validates the Authorization header and stores the student
// ID on the request context
func authMiddleware(secret []byte, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := requestIDFromHeader(r)

		header := r.Header.Get("Authorization")
		tokenString := strings.TrimPrefix(header, "Bearer ")
		if header == "" || tokenString == header {
			writeError(w, requestID, NewAPIError(http.StatusUnauthorized, CodeUnauthorized, "Unauthorized"))
			return
		}

		studentID, err := validateStudentToken(tokenString, secret)
		if err != nil {
			writeError(w, requestID, NewAPIError(http.StatusUnauthorized, CodeUnauthorized, "Unauthorized"))
			return
		}

		ctx := context.WithValue(r.Context(), studentIDKey, studentID)
		ctx = context.WithValue(ctx, requestIDKey, requestID)
		next(w, r.WithContext(ctx))
	}
}

// studentIDFromContext returns the authenticated student ID
func studentIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(studentIDKey).(string)
	return id
}

// requestIDFromContext returns the request correlation ID
func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
