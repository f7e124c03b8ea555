// Copyright 2025 LingoPilot
// SPDX-License-Identifier: BUSL-1.1

package provider

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockChatProvider is a ChatProvider that echoes canned replies. Selected at
// startup when no chat API key is configured (development and tests).
type MockChatProvider struct {
	mu      sync.Mutex
	failErr error

	// Reply overrides the canned response content when non-empty
	Reply string

	// Requests keeps every request for assertions
	Requests []ChatRequest
}

// NewMockChatProvider creates a mock chat provider
func NewMockChatProvider() *MockChatProvider {
	return &MockChatProvider{}
}

// Name returns the provider implementation name
func (p *MockChatProvider) Name() string {
	return "mock-chat"
}

// IsHealthy always reports true for the mock
func (p *MockChatProvider) IsHealthy() bool {
	return true
}

// Fail makes subsequent Complete calls return err (nil resets)
func (p *MockChatProvider) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failErr = err
}

// Complete returns a canned reply without calling any external service
func (p *MockChatProvider) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failErr != nil {
		return nil, p.failErr
	}

	p.Requests = append(p.Requests, req)

	content := p.Reply
	if content == "" {
		content = fmt.Sprintf("That's interesting! Tell me more. (mock reply to %q)", clip(req.Message, 40))
	}

	return &ChatResponse{
		Content:    content,
		TokensUsed: 25,
		Model:      "mock",
		Latency:    time.Millisecond,
	}, nil
}

// MockSpeechProvider is a SpeechProvider that fabricates assessments locally.
// Selected at startup when speech credentials are not configured.
type MockSpeechProvider struct {
	mu      sync.Mutex
	failErr error

	// Result overrides the canned assessment when non-nil
	Result *Assessment
}

// NewMockSpeechProvider creates a mock speech provider
func NewMockSpeechProvider() *MockSpeechProvider {
	return &MockSpeechProvider{}
}

// Name returns the provider implementation name
func (p *MockSpeechProvider) Name() string {
	return "mock-speech"
}

// IsHealthy always reports true for the mock
func (p *MockSpeechProvider) IsHealthy() bool {
	return true
}

// Fail makes subsequent Assess calls return err (nil resets)
func (p *MockSpeechProvider) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failErr = err
}

// Assess returns a canned assessment without calling any external service
func (p *MockSpeechProvider) Assess(ctx context.Context, audio []byte, language, mimeType string) (*Assessment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failErr != nil {
		return nil, p.failErr
	}

	if p.Result != nil {
		return p.Result, nil
	}

	return &Assessment{
		Transcript:      "(speech assessment not configured)",
		WordScores:      []WordScore{},
		ProblemPhonemes: []string{},
	}, nil
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
