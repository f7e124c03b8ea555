// Copyright 2025 LingoPilot
// SPDX-License-Identifier: BUSL-1.1

// Package azurespeech implements the speech provider over the Azure Speech
// Services short-audio recognition API with pronunciation assessment.
package azurespeech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"lingopilot/platform/practice/provider"
)

const (
	// DefaultTimeout for recognition requests
	DefaultTimeout = 30 * time.Second

	// ProblemAccuracyThreshold marks words below this accuracy as problem
	// words for the student's phoneme report
	ProblemAccuracyThreshold = 60.0
)

// HTTPClient interface for making HTTP requests (allows mocking in tests)
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds provider configuration
type Config struct {
	// APIKey is the Azure Speech subscription key
	APIKey string

	// Region is the Azure region hosting the speech resource, e.g. "westeurope"
	Region string

	// BaseURL overrides the region-derived endpoint (tests)
	BaseURL string

	Timeout time.Duration

	// HTTPClient is optional, defaults to a client with Timeout
	HTTPClient HTTPClient
}

// Provider implements provider.SpeechProvider using Azure Speech Services
type Provider struct {
	apiKey  string
	baseURL string
	timeout time.Duration
	client  HTTPClient

	mu      sync.RWMutex
	healthy bool
}

// NewProvider creates a new Azure speech provider
func NewProvider(config Config) (*Provider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Azure Speech API key is required")
	}
	if config.Region == "" && config.BaseURL == "" {
		return nil, fmt.Errorf("Azure Speech region is required")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.stt.speech.microsoft.com", config.Region)
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
		baseURL: baseURL,
		timeout: config.Timeout,
		client:  client,
		healthy: true,
	}, nil
}

// Name returns the provider implementation name
func (p *Provider) Name() string {
	return "azure-speech"
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

// localeByLanguage maps two-letter language codes to the Azure locale used
// for recognition
var localeByLanguage = map[string]string{
	"en": "en-US",
	"es": "es-ES",
	"fr": "fr-FR",
	"de": "de-DE",
	"pt": "pt-BR",
	"it": "it-IT",
	"zh": "zh-CN",
	"ja": "ja-JP",
	"ko": "ko-KR",
}

// supportedContentTypes lists the container types Azure Speech accepts
var supportedContentTypes = map[string]string{
	"audio/webm": "audio/webm",
	"audio/mp4":  "audio/mp4",
	"audio/ogg":  "audio/ogg",
	"audio/wav":  "audio/wav",
}

// assessmentConfig is the pronunciation assessment configuration sent
// base64-encoded in the Pronunciation-Assessment header
type assessmentConfig struct {
	ReferenceText string `json:"referenceText"`
	GradingSystem string `json:"gradingSystem"`
	Granularity   string `json:"granularity"`
	Dimension     string `json:"dimension"`
	EnableMiscue  bool   `json:"enableMiscue"`
}

// recognitionResponse is the short-audio API response
type recognitionResponse struct {
	RecognitionStatus string `json:"RecognitionStatus"`
	DisplayText       string `json:"DisplayText"`
	NBest             []struct {
		PronunciationAssessment struct {
			AccuracyScore     float64 `json:"AccuracyScore"`
			FluencyScore      float64 `json:"FluencyScore"`
			CompletenessScore float64 `json:"CompletenessScore"`
			PronScore         float64 `json:"PronScore"`
		} `json:"PronunciationAssessment"`
		Words []struct {
			Word                    string `json:"Word"`
			PronunciationAssessment struct {
				AccuracyScore float64 `json:"AccuracyScore"`
				ErrorType     string  `json:"ErrorType"`
			} `json:"PronunciationAssessment"`
		} `json:"Words"`
	} `json:"NBest"`
}

// APIError represents an error returned by the Azure Speech API
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Azure Speech API error (%d): %s", e.StatusCode, e.Message)
}

// Assess runs free-form pronunciation assessment over the audio payload.
// The assessment uses the hundred-mark grading system at word granularity
// with no reference text.
func (p *Provider) Assess(ctx context.Context, audio []byte, language, mimeType string) (*provider.Assessment, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("audio payload is required")
	}

	configJSON, err := json.Marshal(assessmentConfig{
		ReferenceText: "",
		GradingSystem: "HundredMark",
		Granularity:   "Word",
		Dimension:     "Comprehensive",
		EnableMiscue:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal assessment config: %w", err)
	}

	endpoint := fmt.Sprintf("%s/speech/recognition/conversation/cognitiveservices/v1?language=%s",
		strings.TrimSuffix(p.baseURL, "/"), url.QueryEscape(resolveLocale(language)))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(audio))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", p.apiKey)
	req.Header.Set("Content-Type", resolveContentType(mimeType))
	req.Header.Set("Pronunciation-Assessment", base64.StdEncoding.EncodeToString(configJSON))

	resp, err := p.client.Do(req)
	if err != nil {
		p.setHealthy(false)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.setHealthy(false)
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		p.setHealthy(false)
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
		}
	}

	var result recognitionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		p.setHealthy(false)
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	p.setHealthy(true)
	return buildAssessment(&result), nil
}

// buildAssessment converts the recognition response into an Assessment.
// When recognition produced no NBest candidate the transcript is kept and
// all scores are zero.
func buildAssessment(result *recognitionResponse) *provider.Assessment {
	assessment := &provider.Assessment{
		Transcript:      result.DisplayText,
		WordScores:      []provider.WordScore{},
		ProblemPhonemes: []string{},
	}

	if len(result.NBest) == 0 {
		return assessment
	}

	nbest := result.NBest[0]
	assessment.Accuracy = nbest.PronunciationAssessment.AccuracyScore
	assessment.Fluency = nbest.PronunciationAssessment.FluencyScore
	assessment.Pronunciation = nbest.PronunciationAssessment.PronScore
	assessment.Completeness = nbest.PronunciationAssessment.CompletenessScore

	for _, w := range nbest.Words {
		assessment.WordScores = append(assessment.WordScores, provider.WordScore{
			Word:      w.Word,
			Accuracy:  w.PronunciationAssessment.AccuracyScore,
			ErrorType: w.PronunciationAssessment.ErrorType,
		})
		if w.PronunciationAssessment.AccuracyScore < ProblemAccuracyThreshold {
			assessment.ProblemPhonemes = append(assessment.ProblemPhonemes, w.Word)
		}
	}

	return assessment
}

// resolveLocale maps a two-letter language code to its Azure locale. Full
// locale tags pass through unchanged.
func resolveLocale(language string) string {
	if language == "" {
		return "en-US"
	}
	if len(language) >= 2 {
		if locale, ok := localeByLanguage[strings.ToLower(language[:2])]; ok && len(language) == 2 {
			return locale
		}
	}
	return language
}

// resolveContentType maps the recording's mime type to an accepted content
// type, defaulting to webm
func resolveContentType(mimeType string) string {
	if ct, ok := supportedContentTypes[mimeType]; ok {
		return ct
	}
	return "audio/webm"
}
