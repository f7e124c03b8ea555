// Copyright 2025 LingoPilot
// SPDX-License-Identifier: BUSL-1.1

// Package openai implements the chat provider over the OpenAI chat
// completions API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"lingopilot/platform/practice/provider"
)

const (
	// DefaultBaseURL is the OpenAI API endpoint
	DefaultBaseURL = "https://api.openai.com"

	// DefaultModel balances quality and cost for short practice turns
	DefaultModel = "gpt-4o-mini"

	// DefaultTimeout for chat completion requests
	DefaultTimeout = 30 * time.Second

	// DefaultTemperature keeps replies varied without drifting off-task
	DefaultTemperature = 0.8

	// Per-request guardrails bounding prompt and completion cost
	MaxHistoryMessages = 10
	MaxMessageChars    = 800
	MaxOutputTokens    = 200
)

// HTTPClient interface for making HTTP requests (allows mocking in tests)
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds provider configuration
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration

	// HTTPClient is optional, defaults to a client with Timeout
	HTTPClient HTTPClient
}

// Provider implements provider.ChatProvider using the OpenAI API
type Provider struct {
	apiKey  string
	baseURL string
	model   string
	timeout time.Duration
	client  HTTPClient

	mu      sync.RWMutex
	healthy bool
}

// NewProvider creates a new OpenAI chat provider
func NewProvider(config Config) (*Provider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}

	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}

	return &Provider{
		apiKey:  config.APIKey,
		baseURL: config.BaseURL,
		model:   config.Model,
		timeout: config.Timeout,
		client:  client,
		healthy: true,
	}, nil
}

// Name returns the provider implementation name
func (p *Provider) Name() string {
	return "openai"
}

// IsHealthy returns whether the last API call succeeded
func (p *Provider) IsHealthy() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.healthy
}

func (p *Provider) setHealthy(healthy bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.healthy = healthy
}

// chatCompletionRequest is the OpenAI chat completions request body
type chatCompletionRequest struct {
	Model       string                 `json:"model"`
	Messages    []provider.ChatMessage `json:"messages"`
	Temperature float64                `json:"temperature"`
	MaxTokens   int                    `json:"max_tokens"`
}

// chatCompletionResponse is the OpenAI chat completions response body
type chatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// apiErrorResponse is the OpenAI error envelope
type apiErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// APIError represents an error returned by the OpenAI API
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("OpenAI API error (%d %s): %s", e.StatusCode, e.Type, e.Message)
}

// IsRateLimitError returns true if the error is a rate limit error
func (e *APIError) IsRateLimitError() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// IsAuthError returns true if the error is an authentication error
func (e *APIError) IsAuthError() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// Complete generates a reply to the student's message. History beyond
// MaxHistoryMessages and message text beyond MaxMessageChars are clipped
// before the call.
func (p *Provider) Complete(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	if req.Message == "" {
		return nil, fmt.Errorf("message is required")
	}

	messages := buildMessages(req)

	body, err := json.Marshal(chatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		Temperature: DefaultTemperature,
		MaxTokens:   MaxOutputTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := strings.TrimSuffix(p.baseURL, "/") + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		p.setHealthy(false)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		p.setHealthy(false)
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		p.setHealthy(false)
		return nil, p.parseAPIError(resp.StatusCode, respBody)
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		p.setHealthy(false)
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(completion.Choices) == 0 {
		p.setHealthy(false)
		return nil, fmt.Errorf("OpenAI returned no choices")
	}

	p.setHealthy(true)
	return &provider.ChatResponse{
		Content:    completion.Choices[0].Message.Content,
		TokensUsed: completion.Usage.TotalTokens,
		Model:      completion.Model,
		Latency:    time.Since(start),
	}, nil
}

func (p *Provider) parseAPIError(statusCode int, body []byte) error {
	var envelope apiErrorResponse
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error.Message == "" {
		return &APIError{
			StatusCode: statusCode,
			Type:       "unknown",
			Message:    strings.TrimSpace(string(body)),
		}
	}
	return &APIError{
		StatusCode: statusCode,
		Type:       envelope.Error.Type,
		Message:    envelope.Error.Message,
	}
}

// buildMessages assembles the prompt: system, clipped history, then the
// student's message clipped to MaxMessageChars.
func buildMessages(req provider.ChatRequest) []provider.ChatMessage {
	messages := make([]provider.ChatMessage, 0, len(req.History)+2)

	if req.SystemPrompt != "" {
		messages = append(messages, provider.ChatMessage{
			Role:    provider.RoleSystem,
			Content: req.SystemPrompt,
		})
	}

	history := req.History
	if len(history) > MaxHistoryMessages {
		history = history[len(history)-MaxHistoryMessages:]
	}
	for _, msg := range history {
		if msg.Role == provider.RoleUser || msg.Role == provider.RoleAssistant {
			messages = append(messages, msg)
		}
	}

	message := req.Message
	if len(message) > MaxMessageChars {
		message = message[:MaxMessageChars]
	}
	messages = append(messages, provider.ChatMessage{
		Role:    provider.RoleUser,
		Content: message,
	})

	return messages
}
