// Copyright 2025 LingoPilot
// SPDX-License-Identifier: BUSL-1.1

package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultBaseURL is the billing provider's API endpoint
	DefaultBaseURL = "https://api.stripe.com"

	// DefaultTimeout is the request timeout for usage record calls
	DefaultTimeout = 15 * time.Second
)

// HTTPClient interface for making HTTP requests (allows mocking in tests)
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds APIBiller configuration
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration

	// HTTPClient is optional, defaults to a client with Timeout
	HTTPClient HTTPClient
}

// APIBiller reports metered usage records over the provider's REST API
type APIBiller struct {
	config  Config
	client  HTTPClient
	mu      sync.RWMutex
	healthy bool
}

// NewAPIBiller creates a new API-backed biller
func NewAPIBiller(config Config) (*APIBiller, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("billing API key is required")
	}

	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}

	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}

	return &APIBiller{
		config:  config,
		client:  client,
		healthy: true,
	}, nil
}

// Name returns the biller implementation name
func (b *APIBiller) Name() string {
	return "api"
}

// IsHealthy returns whether the last API call succeeded
func (b *APIBiller) IsHealthy() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.healthy
}

func (b *APIBiller) setHealthy(healthy bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.healthy = healthy
}

// usageRecordResponse is the provider's response to a usage record creation
type usageRecordResponse struct {
	ID string `json:"id"`
}

// apiErrorResponse is the provider's error envelope
type apiErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// APIError represents an error returned by the billing provider
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("billing API error (%d %s): %s", e.StatusCode, e.Type, e.Message)
}

// RecordMeteredUsage posts an incremental usage record against the
// subscription item and returns the provider's record ID.
func (b *APIBiller) RecordMeteredUsage(ctx context.Context, subscriptionItemID string, quantity int, ts time.Time) (string, error) {
	if subscriptionItemID == "" {
		return "", ErrMissingSubscriptionItem
	}
	if quantity <= 0 {
		return "", fmt.Errorf("quantity must be positive, got %d", quantity)
	}

	form := url.Values{}
	form.Set("quantity", strconv.Itoa(quantity))
	form.Set("timestamp", strconv.FormatInt(ts.Unix(), 10))
	form.Set("action", "increment")

	endpoint := fmt.Sprintf("%s/v1/subscription_items/%s/usage_records",
		strings.TrimSuffix(b.config.BaseURL, "/"), url.PathEscape(subscriptionItemID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+b.config.APIKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.client.Do(req)
	if err != nil {
		b.setHealthy(false)
		return "", fmt.Errorf("%w: %v", ErrBillingUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		b.setHealthy(false)
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		b.setHealthy(false)
		return "", b.parseAPIError(resp.StatusCode, body)
	}

	var record usageRecordResponse
	if err := json.Unmarshal(body, &record); err != nil {
		b.setHealthy(false)
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if record.ID == "" {
		b.setHealthy(false)
		return "", fmt.Errorf("billing provider returned empty usage record ID")
	}

	b.setHealthy(true)
	return record.ID, nil
}

func (b *APIBiller) parseAPIError(statusCode int, body []byte) error {
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
