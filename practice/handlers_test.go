// Copyright 2025 LingoPilot
// SPDX-License-Identifier: BUSL-1.1

package practice

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func authedRequest(method, target string, body *bytes.Buffer) *http.Request {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, target, body)
	ctx := context.WithValue(req.Context(), studentIDKey, "student-1")
	ctx = context.WithValue(ctx, requestIDKey, "req-1")
	return req.WithContext(ctx)
}

func multipartAudio(t *testing.T, payload []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("audio", "recording.webm")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("failed to write audio: %v", err)
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func newTestHandlers(maxAudioBytes int64) (*Handlers, *testEnv) {
	env := newTestEnv(unlimitedStudent())
	return NewHandlers(env.service, maxAudioBytes, nil), env
}

func TestHandleChatSuccess(t *testing.T) {
	handlers, env := newTestHandlers(0)
	env.seedTextSession()

	body := bytes.NewBufferString(`{"sessionId": "sess-1", "message": "hola"}`)
	req := authedRequest("POST", "/api/v1/practice/chat", body)
	rec := httptest.NewRecorder()

	handlers.HandleChat(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp ChatTurnResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Content == "" || resp.MessageID == "" {
		t.Errorf("incomplete response: %+v", resp)
	}
	if resp.Usage.TextTurnsUsed != 1 {
		t.Errorf("expected usage block, got %+v", resp.Usage)
	}
}

func TestHandleChatInvalidJSON(t *testing.T) {
	handlers, _ := newTestHandlers(0)

	req := authedRequest("POST", "/api/v1/practice/chat", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()

	handlers.HandleChat(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), CodeInvalidInput) {
		t.Errorf("expected %s in body: %s", CodeInvalidInput, rec.Body.String())
	}
}

func TestHandleChatMissingSession(t *testing.T) {
	handlers, _ := newTestHandlers(0)

	body := bytes.NewBufferString(`{"sessionId": "ghost", "message": "hola"}`)
	req := authedRequest("POST", "/api/v1/practice/chat", body)
	rec := httptest.NewRecorder()

	handlers.HandleChat(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), CodeSessionNotFound) {
		t.Errorf("expected %s in body: %s", CodeSessionNotFound, rec.Body.String())
	}
}

func TestHandleAudioSuccess(t *testing.T) {
	handlers, _ := newTestHandlers(0)

	body, contentType := multipartAudio(t, make([]byte, 3*audioBytesPerSecond), map[string]string{
		"language": "en",
		"mimeType": "audio/webm",
	})
	req := authedRequest("POST", "/api/v1/practice/audio", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	handlers.HandleAudio(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp AudioTurnResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.AssessmentID == "" {
		t.Error("expected assessment ID")
	}
	if resp.DurationSeconds != 3 {
		t.Errorf("expected 3s, got %d", resp.DurationSeconds)
	}
}

func TestHandleAudioPayloadTooLarge(t *testing.T) {
	handlers, _ := newTestHandlers(1024)

	body, contentType := multipartAudio(t, make([]byte, 8*1024), nil)
	req := authedRequest("POST", "/api/v1/practice/audio", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	handlers.HandleAudio(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), CodePayloadTooLarge) {
		t.Errorf("expected %s in body: %s", CodePayloadTooLarge, rec.Body.String())
	}
}

func TestHandleAudioMissingFile(t *testing.T) {
	handlers, _ := newTestHandlers(0)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	_ = writer.WriteField("language", "en")
	_ = writer.Close()

	req := authedRequest("POST", "/api/v1/practice/audio", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()

	handlers.HandleAudio(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandleAudioBudget(t *testing.T) {
	handlers, _ := newTestHandlers(0)

	req := authedRequest("GET", "/api/v1/practice/audio/budget", nil)
	rec := httptest.NewRecorder()

	handlers.HandleAudioBudget(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp AudioBudgetResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !resp.Enabled {
		t.Error("expected audio enabled")
	}
}

func TestRequestIDFromHeader(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "caller-id")
	if id := requestIDFromHeader(req); id != "caller-id" {
		t.Errorf("expected propagated ID, got %q", id)
	}

	req = httptest.NewRequest("GET", "/", nil)
	if id := requestIDFromHeader(req); id == "" {
		t.Error("expected minted ID when header absent")
	}
}
