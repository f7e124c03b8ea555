// Copyright 2025 LingoPilot
// SPDX-License-Identifier: BUSL-1.1

package practice

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"lingopilot/platform/practice/billing"
	"lingopilot/platform/practice/entitlement"
	"lingopilot/platform/practice/limiter"
	"lingopilot/platform/practice/provider"
	"lingopilot/platform/practice/session"
	"lingopilot/platform/practice/usage"
	"lingopilot/platform/shared/logger"
)

// Audio duration is estimated from payload size. Uploads are compressed
// speech at roughly 16 KB/s; the estimate is capped at the recording limit.
const (
	audioBytesPerSecond = 16000

	// MaxAudioDurationSeconds caps a single recording
	MaxAudioDurationSeconds = 30

	// HistoryWindow is how many stored messages are replayed to the chat
	// provider
	HistoryWindow = 10
)

// Service orchestrates one practice turn end to end: entitlement, admission
// control, reservation, the provider call, the usage commit, and the billing
// bridge. Handlers hold no business logic beyond decoding and encoding.
type Service struct {
	entitlements *entitlement.Resolver
	meter        *usage.Meter
	sessions     *session.Manager
	rateLimiter  *limiter.RateLimiter
	marginGuard  *limiter.MarginGuard
	bridge       *billing.Bridge
	chat         provider.ChatProvider
	speech       provider.SpeechProvider
	assessments  AssessmentStore
	log          *logger.Logger
}

// NewService wires the orchestrator from its collaborators
func NewService(
	entitlements *entitlement.Resolver,
	meter *usage.Meter,
	sessions *session.Manager,
	rateLimiter *limiter.RateLimiter,
	marginGuard *limiter.MarginGuard,
	bridge *billing.Bridge,
	chat provider.ChatProvider,
	speech provider.SpeechProvider,
	assessments AssessmentStore,
	log *logger.Logger,
) *Service {
	if log == nil {
		log = logger.New("practice-service")
	}
	return &Service{
		entitlements: entitlements,
		meter:        meter,
		sessions:     sessions,
		rateLimiter:  rateLimiter,
		marginGuard:  marginGuard,
		bridge:       bridge,
		chat:         chat,
		speech:       speech,
		assessments:  assessments,
		log:          log,
	}
}

// ChatTurnRequest is one text practice exchange
type ChatTurnRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`

	// FocusWords is the vocabulary the exchange should exercise; matched
	// words are echoed back in VocabularyUsed
	FocusWords []string `json:"focusWords,omitempty"`
}

// ChatTurnResponse is the assistant reply with structured feedback and the
// post-commit usage snapshot
type ChatTurnResponse struct {
	MessageID      string          `json:"messageId"`
	Content        string          `json:"content"`
	Corrections    []Correction    `json:"corrections"`
	PhoneticErrors []PhoneticError `json:"phoneticErrors"`
	VocabularyUsed []string        `json:"vocabularyUsed"`
	Usage          usage.Snapshot  `json:"usage"`
}

// AudioScores groups the hundred-mark pronunciation scores
type AudioScores struct {
	Accuracy      float64 `json:"accuracy"`
	Fluency       float64 `json:"fluency"`
	Pronunciation float64 `json:"pronunciation"`
	Completeness  float64 `json:"completeness"`
}

// AudioTurnRequest is one pronunciation assessment request
type AudioTurnRequest struct {
	SessionID string
	Language  string
	MimeType  string
	Audio     []byte
}

// AudioTurnResponse is the assessment result with the post-commit usage
// snapshot
type AudioTurnResponse struct {
	AssessmentID    string               `json:"assessmentId"`
	Transcript      string               `json:"transcript"`
	Scores          AudioScores          `json:"scores"`
	WordScores      []provider.WordScore `json:"wordScores"`
	ProblemPhonemes []string             `json:"problemPhonemes"`
	DurationSeconds int                  `json:"durationSeconds"`
	Usage           usage.Snapshot       `json:"usage"`
}

// AudioBudgetResponse is the read-only audio budget snapshot
type AudioBudgetResponse struct {
	Enabled   bool           `json:"enabled"`
	Usage     usage.Snapshot `json:"usage"`
	PeriodEnd time.Time      `json:"periodEnd"`
}

// ChatTurn runs one text practice exchange: admission control, slot
// reservation, the chat provider call, the usage commit, and the billing
// bridge when the commit drew on an unbilled block. The reservation is
// rolled back on any failure after it is taken.
func (s *Service) ChatTurn(ctx context.Context, studentID, requestID string, req ChatTurnRequest) (*ChatTurnResponse, error) {
	if req.SessionID == "" || req.Message == "" {
		return nil, NewAPIError(http.StatusBadRequest, CodeInvalidInput, "sessionId and message are required")
	}

	access, err := s.entitlements.Resolve(ctx, studentID)
	if err != nil {
		return nil, err
	}

	sess, err := s.sessions.Get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.StudentID != studentID {
		return nil, NewAPIError(http.StatusForbidden, CodeForbidden, "Session belongs to another student")
	}
	if sess.Mode != session.ModeText {
		return nil, session.ErrModeMismatch
	}

	if err := s.admit(ctx, studentID, s.tutorFor(sess.TutorID, access), access, "text"); err != nil {
		return nil, err
	}

	// Per-session tier ceiling, on top of the session's own max_messages
	if access.TextTurnsPerSession > 0 && sess.MessageCount/session.SlotsPerExchange >= access.TextTurnsPerSession {
		return nil, &APIError{
			Status:  http.StatusPaymentRequired,
			Code:    CodeSessionTextLimitReached,
			Message: fmt.Sprintf("This session reached its %d-turn limit for the %s tier", access.TextTurnsPerSession, access.Tier),
			Details: upgradePrompt(access),
		}
	}

	res, err := s.sessions.Reserve(ctx, req.SessionID, session.SlotsPerExchange)
	if err != nil {
		return nil, err
	}

	period, err := s.meter.ResolvePeriod(ctx, studentID, s.tutorFor(sess.TutorID, access))
	if err != nil {
		s.rollback(ctx, studentID, requestID, res)
		return nil, err
	}

	history, err := s.sessions.History(ctx, req.SessionID, HistoryWindow)
	if err != nil {
		// A lost history degrades the reply, it does not fail the turn
		s.log.Warn(studentID, requestID, "Failed to load session history", map[string]interface{}{
			"session_id": req.SessionID,
			"error":      err.Error(),
		})
		history = nil
	}

	start := time.Now()
	reply, err := s.chat.Complete(ctx, provider.ChatRequest{
		SystemPrompt: systemPromptFor(sess),
		History:      chatHistory(history),
		Message:      req.Message,
	})
	promProviderDuration.WithLabelValues(s.chat.Name()).Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		s.rollback(ctx, studentID, requestID, res)
		promTurnsTotal.WithLabelValues("text", "provider_error").Inc()
		s.log.Error(studentID, requestID, "Chat provider call failed", map[string]interface{}{
			"session_id": req.SessionID,
			"provider":   s.chat.Name(),
			"error":      err.Error(),
		})
		return nil, NewAPIError(http.StatusBadGateway, CodeProviderError, "The practice partner is unavailable right now, try again")
	}

	commit, err := s.meter.CommitTextTurn(ctx, period.ID, access.CanBuyBlocks())
	if err != nil {
		s.rollback(ctx, studentID, requestID, res)
		promTurnsTotal.WithLabelValues("text", "limit").Inc()
		return nil, s.patchBlockRequired(err, access)
	}

	snapshot := commit.Snapshot
	snapshot.IsFreeUser = access.IsFreeUser
	snapshot.CanBuyBlocks = access.CanBuyBlocks()

	if commit.NeedsBlock && access.CanBuyBlocks() {
		updated, _, berr := s.bridge.PurchaseBlocks(ctx, studentID, commit.Period,
			commit.BlocksNeeded, usage.TriggerTextOverflow, access.BlockSubscriptionItemID)
		if berr != nil {
			// The commit stands; the gap is reconciled out of band
			s.log.Error(studentID, requestID, "Block purchase failed after text commit", map[string]interface{}{
				"period_id": period.ID,
				"blocks":    commit.BlocksNeeded,
				"error":     berr.Error(),
			})
		} else {
			snapshot = usage.NewSnapshot(updated, access.IsFreeUser, access.CanBuyBlocks())
			snapshot.BlockPurchased = true
			promBlocksPurchased.WithLabelValues(string(usage.TriggerTextOverflow)).Inc()
		}
	}

	parsed := ParseReply(reply.Content)

	s.persistExchange(ctx, studentID, requestID, sess.ID, req.Message, parsed, reply)
	assistantID := s.saveAssistantMessage(ctx, studentID, requestID, sess.ID, parsed.Content, reply.TokensUsed)

	promTurnsTotal.WithLabelValues("text", "success").Inc()

	return &ChatTurnResponse{
		MessageID:      assistantID,
		Content:        parsed.Content,
		Corrections:    parsed.Corrections,
		PhoneticErrors: parsed.PhoneticErrors,
		VocabularyUsed: vocabularyUsed(parsed.Content, req.FocusWords),
		Usage:          snapshot,
	}, nil
}

// AudioTurn runs one pronunciation assessment: admission control, the speech
// provider call, the audio usage commit, and the billing bridge. There is no
// reservation phase; the commit is the only durable write that can fail.
func (s *Service) AudioTurn(ctx context.Context, studentID, requestID string, req AudioTurnRequest) (*AudioTurnResponse, error) {
	if len(req.Audio) == 0 {
		return nil, NewAPIError(http.StatusBadRequest, CodeInvalidInput, "audio payload is required")
	}

	access, err := s.entitlements.Resolve(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if !access.AudioEnabled {
		return nil, &APIError{
			Status:  http.StatusForbidden,
			Code:    CodeForbidden,
			Message: "Audio practice is not included in your plan",
			Details: upgradePrompt(access),
		}
	}

	tutorID := s.tutorFor("", access)
	if req.SessionID != "" {
		sess, err := s.sessions.Get(ctx, req.SessionID)
		if err != nil {
			return nil, err
		}
		if sess.StudentID != studentID {
			return nil, NewAPIError(http.StatusForbidden, CodeForbidden, "Session belongs to another student")
		}
		if sess.Mode != session.ModeAudio {
			return nil, session.ErrModeMismatch
		}
		tutorID = s.tutorFor(sess.TutorID, access)
	}

	if err := s.admit(ctx, studentID, tutorID, access, "audio"); err != nil {
		return nil, err
	}

	duration := estimateDurationSeconds(len(req.Audio))

	start := time.Now()
	assessment, err := s.speech.Assess(ctx, req.Audio, req.Language, req.MimeType)
	promProviderDuration.WithLabelValues(s.speech.Name()).Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		promTurnsTotal.WithLabelValues("audio", "provider_error").Inc()
		s.log.Error(studentID, requestID, "Speech provider call failed", map[string]interface{}{
			"provider": s.speech.Name(),
			"bytes":    len(req.Audio),
			"error":    err.Error(),
		})
		return nil, NewAPIError(http.StatusBadGateway, CodeProviderError, "Pronunciation assessment is unavailable right now, try again")
	}

	period, err := s.meter.ResolvePeriod(ctx, studentID, tutorID)
	if err != nil {
		return nil, err
	}

	commit, err := s.meter.CommitAudioSeconds(ctx, period.ID, duration, access.CanBuyBlocks())
	if err != nil {
		promTurnsTotal.WithLabelValues("audio", "limit").Inc()
		return nil, s.patchBlockRequired(err, access)
	}

	snapshot := commit.Snapshot
	snapshot.IsFreeUser = access.IsFreeUser
	snapshot.CanBuyBlocks = access.CanBuyBlocks()

	if commit.NeedsBlock && access.CanBuyBlocks() {
		updated, _, berr := s.bridge.PurchaseBlocks(ctx, studentID, commit.Period,
			commit.BlocksNeeded, usage.TriggerAudioOverflow, access.BlockSubscriptionItemID)
		if berr != nil {
			s.log.Error(studentID, requestID, "Block purchase failed after audio commit", map[string]interface{}{
				"period_id": period.ID,
				"blocks":    commit.BlocksNeeded,
				"error":     berr.Error(),
			})
		} else {
			snapshot = usage.NewSnapshot(updated, access.IsFreeUser, access.CanBuyBlocks())
			snapshot.BlockPurchased = true
			promBlocksPurchased.WithLabelValues(string(usage.TriggerAudioOverflow)).Inc()
		}
	}

	rec := &AssessmentRecord{
		ID:              uuid.New().String(),
		SessionID:       req.SessionID,
		StudentID:       studentID,
		TutorID:         tutorID,
		Language:        req.Language,
		DurationSeconds: duration,
		Transcript:      assessment.Transcript,
		Accuracy:        assessment.Accuracy,
		Fluency:         assessment.Fluency,
		Pronunciation:   assessment.Pronunciation,
		Completeness:    assessment.Completeness,
		WordScores:      assessment.WordScores,
		ProblemPhonemes: assessment.ProblemPhonemes,
	}
	if err := s.assessments.InsertAssessment(ctx, rec); err != nil {
		// The usage is committed and billed; a lost review row is logged
		s.log.Error(studentID, requestID, "Failed to persist assessment", map[string]interface{}{
			"assessment_id": rec.ID,
			"error":         err.Error(),
		})
	}

	promTurnsTotal.WithLabelValues("audio", "success").Inc()

	return &AudioTurnResponse{
		AssessmentID: rec.ID,
		Transcript:   assessment.Transcript,
		Scores: AudioScores{
			Accuracy:      assessment.Accuracy,
			Fluency:       assessment.Fluency,
			Pronunciation: assessment.Pronunciation,
			Completeness:  assessment.Completeness,
		},
		WordScores:      assessment.WordScores,
		ProblemPhonemes: assessment.ProblemPhonemes,
		DurationSeconds: duration,
		Usage:           snapshot,
	}, nil
}

// AudioBudget reports the remaining audio budget without consuming anything
func (s *Service) AudioBudget(ctx context.Context, studentID string) (*AudioBudgetResponse, error) {
	access, err := s.entitlements.Resolve(ctx, studentID)
	if err != nil {
		return nil, err
	}

	period, err := s.meter.ResolvePeriod(ctx, studentID, s.tutorFor("", access))
	if err != nil {
		return nil, err
	}

	return &AudioBudgetResponse{
		Enabled:   access.AudioEnabled,
		Usage:     usage.NewSnapshot(period, access.IsFreeUser, access.CanBuyBlocks()),
		PeriodEnd: period.PeriodEnd,
	}, nil
}

// admit runs the side-effect-free gates: monthly margin guard then the
// per-minute rate limit. Denials never touch ledger or session state.
func (s *Service) admit(ctx context.Context, studentID, tutorID string, access *entitlement.Access, mode string) error {
	guard, err := s.marginGuard.Check(ctx, studentID, tutorID)
	if err != nil {
		return err
	}
	if !guard.Allowed {
		promAdmissionDenied.Inc()
		promTurnsTotal.WithLabelValues(mode, "capped").Inc()
		return &APIError{
			Status:  http.StatusForbidden,
			Code:    CodeMonthlyLimitExceeded,
			Message: "Monthly practice limit reached",
			Extra: map[string]interface{}{
				"used": guard.Used,
				"cap":  guard.Cap,
			},
		}
	}

	decision := s.rateLimiter.Allow(ctx, studentID, !access.IsFreeUser)
	if !decision.Allowed {
		promRateLimited.Inc()
		promTurnsTotal.WithLabelValues(mode, "rate_limited").Inc()
		return &APIError{
			Status:  http.StatusTooManyRequests,
			Code:    CodeRateLimitExceeded,
			Message: "Too many requests, slow down",
			Extra: map[string]interface{}{
				"limit":             decision.Limit,
				"retryAfterSeconds": int(decision.RetryAfter.Seconds()) + 1,
			},
		}
	}

	return nil
}

// tutorFor picks the ledger partition key. Sessions carry their tutor;
// solo students without one meter against themselves.
func (s *Service) tutorFor(sessionTutorID string, access *entitlement.Access) string {
	if sessionTutorID != "" {
		return sessionTutorID
	}
	if access.TutorID != "" {
		return access.TutorID
	}
	return access.StudentID
}

// rollback compensates a reservation, logging instead of failing: the
// original error is what the caller needs to see.
func (s *Service) rollback(ctx context.Context, studentID, requestID string, res *session.Reservation) {
	if err := s.sessions.Rollback(ctx, res); err != nil {
		s.log.Error(studentID, requestID, "Reservation rollback failed", map[string]interface{}{
			"session_id": res.SessionID,
			"error":      err.Error(),
		})
	}
}

// patchBlockRequired stamps the entitlement flags onto an
// allowance-exhausted snapshot before it goes to the client
func (s *Service) patchBlockRequired(err error, access *entitlement.Access) error {
	if blockErr, ok := err.(*usage.BlockRequiredError); ok {
		blockErr.Snapshot.IsFreeUser = access.IsFreeUser
		blockErr.Snapshot.CanBuyBlocks = access.CanBuyBlocks()
	}
	return err
}

// persistExchange stores the student's message. A write failure degrades
// history, it does not fail the turn.
func (s *Service) persistExchange(ctx context.Context, studentID, requestID, sessionID, message string, parsed *ParsedReply, reply *provider.ChatResponse) {
	if _, err := s.sessions.SaveMessage(ctx, &session.Message{
		SessionID: sessionID,
		Role:      provider.RoleUser,
		Content:   message,
	}); err != nil {
		s.log.Warn(studentID, requestID, "Failed to persist student message", map[string]interface{}{
			"session_id": sessionID,
			"error":      err.Error(),
		})
	}

	if err := s.sessions.RecordTurn(ctx, sessionID, session.TurnStats{
		TokensUsed:     reply.TokensUsed,
		GrammarErrors:  len(parsed.Corrections),
		PhoneticErrors: len(parsed.PhoneticErrors),
	}); err != nil {
		s.log.Warn(studentID, requestID, "Failed to record turn stats", map[string]interface{}{
			"session_id": sessionID,
			"error":      err.Error(),
		})
	}
}

// saveAssistantMessage stores the reply and returns its message ID. When the
// write fails a synthetic ID keeps the response shape intact.
func (s *Service) saveAssistantMessage(ctx context.Context, studentID, requestID, sessionID, content string, tokens int) string {
	id, err := s.sessions.SaveMessage(ctx, &session.Message{
		SessionID:  sessionID,
		Role:       provider.RoleAssistant,
		Content:    content,
		TokensUsed: tokens,
	})
	if err != nil {
		s.log.Warn(studentID, requestID, "Failed to persist assistant message", map[string]interface{}{
			"session_id": sessionID,
			"error":      err.Error(),
		})
		return uuid.New().String()
	}
	return id
}

// upgradePrompt is the structured payload rendered with tier-limit denials
func upgradePrompt(access *entitlement.Access) map[string]interface{} {
	prompt := map[string]interface{}{
		"tier":              string(access.Tier),
		"showUpgradePrompt": access.ShowUpgradePrompt,
	}
	if access.UpgradePriceCents > 0 {
		prompt["upgradePriceCents"] = access.UpgradePriceCents
	}
	if access.TutorName != "" {
		prompt["tutorName"] = access.TutorName
	}
	return prompt
}

// chatHistory converts stored messages to provider messages
func chatHistory(messages []session.Message) []provider.ChatMessage {
	if len(messages) == 0 {
		return nil
	}
	history := make([]provider.ChatMessage, 0, len(messages))
	for _, m := range messages {
		history = append(history, provider.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return history
}

// vocabularyUsed never returns nil so the response field encodes as []
func vocabularyUsed(content string, focusWords []string) []string {
	used := MatchVocabulary(content, focusWords)
	if used == nil {
		return []string{}
	}
	return used
}

// estimateDurationSeconds derives billable seconds from the payload size
func estimateDurationSeconds(payloadBytes int) int {
	seconds := (payloadBytes + audioBytesPerSecond - 1) / audioBytesPerSecond
	if seconds < 1 {
		seconds = 1
	}
	if seconds > MaxAudioDurationSeconds {
		seconds = MaxAudioDurationSeconds
	}
	return seconds
}

// systemPromptFor returns the session's stored prompt, or builds the default
// tutoring persona from the session's language, level, and topic
func systemPromptFor(sess *session.Session) string {
	if sess.SystemPrompt != "" {
		return sess.SystemPrompt
	}

	prompt := fmt.Sprintf(`You are a friendly language tutor helping a %s-level student practice %s.`,
		sess.Level, sess.Language)
	if sess.Topic != "" {
		prompt += fmt.Sprintf(" The conversation topic is: %s.", sess.Topic)
	}
	prompt += `

Keep replies short (2-3 sentences) and always end with a question to keep the conversation going. Stay in the practice language.

When the student makes grammar mistakes, append them after your reply as:
<corrections>[{"original": "...", "corrected": "...", "category": "...", "explanation": "..."}]</corrections>
Valid categories: verb_tense, subject_verb_agreement, preposition, article, word_order, gender_agreement, conjugation, pronoun, plural_singular, spelling, vocabulary.

When a spelling mistake suggests the student mishears the word, also append:
<phonetic_errors>[{"misspelled": "...", "intended": "...", "pattern": "..."}]</phonetic_errors>

Do not mention the tags in the conversational text.`

	return prompt
}
