// Copyright 2025 LingoPilot
// SPDX-License-Identifier: BUSL-1.1

// Package provider defines the AI provider interfaces the practice service
// talks to: a chat completion provider for conversational turns, and a
// speech provider for pronunciation assessment of recorded audio.
//
// Implementations must be safe for concurrent use. Providers are selected
// once at startup from configuration; they are never swapped per request.
package provider

import (
	"context"
	"time"
)

// Role values for chat messages
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one message in a practice conversation
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a request for a conversational completion
type ChatRequest struct {
	// SystemPrompt frames the tutoring persona and correction format
	SystemPrompt string

	// History is the prior conversation, oldest first. Providers may clip
	// it to bound prompt cost.
	History []ChatMessage

	// Message is the student's current message
	Message string
}

// ChatResponse is the provider's completion
type ChatResponse struct {
	// Content is the raw assistant output, including any structured
	// correction tags
	Content string

	// TokensUsed is the total tokens consumed by the call
	TokensUsed int

	// Model identifies the model that produced the response
	Model string

	// Latency is the total request duration
	Latency time.Duration
}

// ChatProvider generates conversational practice turns
type ChatProvider interface {
	// Name returns the provider implementation name
	Name() string

	// Complete generates a reply to the student's message
	Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// IsHealthy reports whether the last provider call succeeded
	IsHealthy() bool
}

// WordScore is a per-word pronunciation accuracy score
type WordScore struct {
	Word      string  `json:"word"`
	Accuracy  float64 `json:"accuracy"`
	ErrorType string  `json:"error_type,omitempty"`
}

// Assessment is the result of a pronunciation assessment
type Assessment struct {
	// Transcript is the recognized text
	Transcript string `json:"transcript"`

	// Scores on a hundred-mark scale
	Accuracy      float64 `json:"accuracy"`
	Fluency       float64 `json:"fluency"`
	Pronunciation float64 `json:"pronunciation"`
	Completeness  float64 `json:"completeness"`

	// WordScores carries per-word accuracy
	WordScores []WordScore `json:"word_scores"`

	// ProblemPhonemes lists words whose accuracy fell below the problem
	// threshold
	ProblemPhonemes []string `json:"problem_phonemes"`
}

// SpeechProvider assesses pronunciation from recorded audio
type SpeechProvider interface {
	// Name returns the provider implementation name
	Name() string

	// Assess runs speech recognition with pronunciation assessment over
	// the audio payload. language is a BCP 47 tag or two-letter code;
	// mimeType is the recording's container type.
	Assess(ctx context.Context, audio []byte, language, mimeType string) (*Assessment, error)

	// IsHealthy reports whether the last provider call succeeded
	IsHealthy() bool
}
