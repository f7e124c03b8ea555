// Copyright 2025 LingoPilot
// SPDX-License-Identifier: BUSL-1.1

package practice

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"lingopilot/platform/shared/logger"
)

// Handlers is the HTTP surface over the orchestrator. It decodes requests,
// delegates to the service, and encodes responses; no business logic lives
// here.
type Handlers struct {
	service       *Service
	maxAudioBytes int64
	log           *logger.Logger
}

// NewHandlers creates the HTTP handlers. maxAudioBytes <= 0 selects the
// default payload bound.
func NewHandlers(service *Service, maxAudioBytes int64, log *logger.Logger) *Handlers {
	if maxAudioBytes <= 0 {
		maxAudioBytes = DefaultMaxAudioBytes
	}
	if log == nil {
		log = logger.New("practice-http")
	}
	return &Handlers{service: service, maxAudioBytes: maxAudioBytes, log: log}
}

// requestIDFromHeader returns the caller's correlation ID, minting one when
// the header is absent
func requestIDFromHeader(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return uuid.New().String()
}

// HandleChat processes POST /api/v1/practice/chat
func (h *Handlers) HandleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	studentID := studentIDFromContext(ctx)
	requestID := requestIDFromContext(ctx)

	var req ChatTurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, requestID, NewAPIError(http.StatusBadRequest, CodeInvalidInput, "Invalid JSON body"))
		return
	}

	resp, err := h.service.ChatTurn(ctx, studentID, requestID, req)
	if err != nil {
		writeError(w, requestID, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleAudio processes POST /api/v1/practice/audio. The multipart payload
// carries the recording under "audio" plus optional sessionId, language,
// and mimeType fields.
func (h *Handlers) HandleAudio(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	studentID := studentIDFromContext(ctx)
	requestID := requestIDFromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxAudioBytes)

	if err := r.ParseMultipartForm(h.maxAudioBytes); err != nil {
		writeError(w, requestID, h.classifyUpload(err))
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, requestID, NewAPIError(http.StatusBadRequest, CodeInvalidInput, "audio file is required"))
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		writeError(w, requestID, h.classifyUpload(err))
		return
	}

	mimeType := r.FormValue("mimeType")
	if mimeType == "" && header != nil {
		mimeType = header.Header.Get("Content-Type")
	}

	resp, err := h.service.AudioTurn(ctx, studentID, requestID, AudioTurnRequest{
		SessionID: r.FormValue("sessionId"),
		Language:  r.FormValue("language"),
		MimeType:  mimeType,
		Audio:     audio,
	})
	if err != nil {
		writeError(w, requestID, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleAudioBudget processes GET /api/v1/practice/audio/budget
func (h *Handlers) HandleAudioBudget(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	studentID := studentIDFromContext(ctx)
	requestID := requestIDFromContext(ctx)

	resp, err := h.service.AudioBudget(ctx, studentID)
	if err != nil {
		writeError(w, requestID, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// classifyUpload maps an oversized body to the payload-too-large code
func (h *Handlers) classifyUpload(err error) error {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return NewAPIError(http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "Audio payload exceeds the upload limit")
	}
	return NewAPIError(http.StatusBadRequest, CodeInvalidInput, "Invalid multipart payload")
}
