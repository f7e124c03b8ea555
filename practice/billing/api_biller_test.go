// Copyright 2025 LingoPilot
// SPDX-License-Identifier: BUSL-1.1

package billing

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockHTTPClient is a mock implementation of HTTPClient
type MockHTTPClient struct {
	mock.Mock
}

func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*http.Response), args.Error(1)
}

func TestNewAPIBiller_Success(t *testing.T) {
	biller, err := NewAPIBiller(Config{
		APIKey: "sk_test_key",
	})

	require.NoError(t, err)
	assert.NotNil(t, biller)
	assert.Equal(t, "api", biller.Name())
	assert.Equal(t, DefaultBaseURL, biller.config.BaseURL)
	assert.Equal(t, DefaultTimeout, biller.config.Timeout)
	assert.True(t, biller.IsHealthy())
}

func TestNewAPIBiller_MissingAPIKey(t *testing.T) {
	biller, err := NewAPIBiller(Config{})

	assert.Error(t, err)
	assert.Nil(t, biller)
	assert.Contains(t, err.Error(), "API key")
}

func TestRecordMeteredUsage_Success(t *testing.T) {
	mockClient := new(MockHTTPClient)
	biller, err := NewAPIBiller(Config{
		APIKey:     "sk_test_key",
		HTTPClient: mockClient,
	})
	require.NoError(t, err)

	ts := time.Unix(1756700000, 0)

	mockClient.On("Do", mock.MatchedBy(func(req *http.Request) bool {
		if req.Method != http.MethodPost {
			return false
		}
		if req.URL.String() != DefaultBaseURL+"/v1/subscription_items/si_abc123/usage_records" {
			return false
		}
		if req.Header.Get("Authorization") != "Bearer sk_test_key" {
			return false
		}
		body, _ := io.ReadAll(req.Body)
		form := string(body)
		return strings.Contains(form, "quantity=1") &&
			strings.Contains(form, "timestamp=1756700000") &&
			strings.Contains(form, "action=increment")
	})).Return(&http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewReader([]byte(`{"id":"mbur_1ABC","quantity":1}`))),
	}, nil)

	recordID, err := biller.RecordMeteredUsage(context.Background(), "si_abc123", 1, ts)

	require.NoError(t, err)
	assert.Equal(t, "mbur_1ABC", recordID)
	assert.True(t, biller.IsHealthy())
	mockClient.AssertExpectations(t)
}

func TestRecordMeteredUsage_MissingSubscriptionItem(t *testing.T) {
	biller, err := NewAPIBiller(Config{APIKey: "sk_test_key"})
	require.NoError(t, err)

	_, err = biller.RecordMeteredUsage(context.Background(), "", 1, time.Now())
	assert.ErrorIs(t, err, ErrMissingSubscriptionItem)
}

func TestRecordMeteredUsage_NonPositiveQuantity(t *testing.T) {
	biller, err := NewAPIBiller(Config{APIKey: "sk_test_key"})
	require.NoError(t, err)

	_, err = biller.RecordMeteredUsage(context.Background(), "si_abc123", 0, time.Now())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "positive")
}

func TestRecordMeteredUsage_APIError(t *testing.T) {
	mockClient := new(MockHTTPClient)
	biller, err := NewAPIBiller(Config{
		APIKey:     "sk_test_key",
		HTTPClient: mockClient,
	})
	require.NoError(t, err)

	errBody := `{"error":{"type":"invalid_request_error","message":"No such subscription item: si_missing"}}`
	mockClient.On("Do", mock.Anything).Return(&http.Response{
		StatusCode: http.StatusNotFound,
		Body:       io.NopCloser(bytes.NewReader([]byte(errBody))),
	}, nil)

	_, err = biller.RecordMeteredUsage(context.Background(), "si_missing", 1, time.Now())

	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "invalid_request_error", apiErr.Type)
	assert.Contains(t, apiErr.Message, "si_missing")
	assert.False(t, biller.IsHealthy())
}

func TestRecordMeteredUsage_NetworkError(t *testing.T) {
	mockClient := new(MockHTTPClient)
	biller, err := NewAPIBiller(Config{
		APIKey:     "sk_test_key",
		HTTPClient: mockClient,
	})
	require.NoError(t, err)

	mockClient.On("Do", mock.Anything).Return(nil, errors.New("connection refused"))

	_, err = biller.RecordMeteredUsage(context.Background(), "si_abc123", 1, time.Now())

	assert.ErrorIs(t, err, ErrBillingUnavailable)
	assert.False(t, biller.IsHealthy())
}

func TestRecordMeteredUsage_InvalidJSON(t *testing.T) {
	mockClient := new(MockHTTPClient)
	biller, err := NewAPIBiller(Config{
		APIKey:     "sk_test_key",
		HTTPClient: mockClient,
	})
	require.NoError(t, err)

	mockClient.On("Do", mock.Anything).Return(&http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewReader([]byte("not json"))),
	}, nil)

	_, err = biller.RecordMeteredUsage(context.Background(), "si_abc123", 1, time.Now())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "parse")
	assert.False(t, biller.IsHealthy())
}

func TestRecordMeteredUsage_EmptyRecordID(t *testing.T) {
	mockClient := new(MockHTTPClient)
	biller, err := NewAPIBiller(Config{
		APIKey:     "sk_test_key",
		HTTPClient: mockClient,
	})
	require.NoError(t, err)

	mockClient.On("Do", mock.Anything).Return(&http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewReader([]byte(`{}`))),
	}, nil)

	_, err = biller.RecordMeteredUsage(context.Background(), "si_abc123", 1, time.Now())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "empty usage record ID")
}

func TestAPIError_Error(t *testing.T) {
	apiErr := &APIError{
		StatusCode: 429,
		Type:       "rate_limit_error",
		Message:    "Too many requests",
	}
	assert.Contains(t, apiErr.Error(), "429")
	assert.Contains(t, apiErr.Error(), "rate_limit_error")
	assert.Contains(t, apiErr.Error(), "Too many requests")
}

func TestMockBiller(t *testing.T) {
	biller := NewMockBiller()
	assert.Equal(t, "mock", biller.Name())

	ts := time.Now()
	id1, err := biller.RecordMeteredUsage(context.Background(), "si_dev", 1, ts)
	require.NoError(t, err)
	id2, err := biller.RecordMeteredUsage(context.Background(), "si_dev", 2, ts)
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)
	require.Len(t, biller.Records, 2)
	assert.Equal(t, 2, biller.Records[1].Quantity)

	biller.Fail(errors.New("billing down"))
	_, err = biller.RecordMeteredUsage(context.Background(), "si_dev", 1, ts)
	assert.Error(t, err)
}
