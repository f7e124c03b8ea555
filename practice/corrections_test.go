// Copyright 2025 LingoPilot
// SPDX-License-Identifier: BUSL-1.1

package practice

import (
	"testing"
)

func TestParseReplyStructuredCorrections(t *testing.T) {
	raw := `Great effort! Let's keep going. What did you do next?
<corrections>[{"original": "I goed", "corrected": "I went", "category": "verb_tense", "explanation": "Irregular past tense"}]</corrections>`

	parsed := ParseReply(raw)

	if len(parsed.Corrections) != 1 {
		t.Fatalf("expected 1 correction, got %d", len(parsed.Corrections))
	}
	c := parsed.Corrections[0]
	if c.Original != "I goed" || c.Corrected != "I went" {
		t.Errorf("unexpected correction: %+v", c)
	}
	if c.Category != "verb_tense" {
		t.Errorf("expected verb_tense, got %q", c.Category)
	}
	if parsed.Content != "Great effort! Let's keep going. What did you do next?" {
		t.Errorf("tags not stripped from content: %q", parsed.Content)
	}
}

func TestParseReplyUnknownCategoryNormalized(t *testing.T) {
	raw := `Nice!<corrections>[{"original": "a", "corrected": "b", "category": "made_up", "explanation": "x"}]</corrections>`

	parsed := ParseReply(raw)

	if len(parsed.Corrections) != 1 {
		t.Fatalf("expected 1 correction, got %d", len(parsed.Corrections))
	}
	if parsed.Corrections[0].Category != "vocabulary" {
		t.Errorf("expected unknown category to normalize to vocabulary, got %q", parsed.Corrections[0].Category)
	}
}

func TestParseReplyPhoneticErrors(t *testing.T) {
	raw := `Good try! What else?
<phonetic_errors>[{"misspelled": "becos", "intended": "because", "pattern": "au/o confusion"}]</phonetic_errors>`

	parsed := ParseReply(raw)

	if len(parsed.PhoneticErrors) != 1 {
		t.Fatalf("expected 1 phonetic error, got %d", len(parsed.PhoneticErrors))
	}
	p := parsed.PhoneticErrors[0]
	if p.Misspelled != "becos" || p.Intended != "because" {
		t.Errorf("unexpected phonetic error: %+v", p)
	}
	if parsed.Content != "Good try! What else?" {
		t.Errorf("tags not stripped: %q", parsed.Content)
	}
}

func TestParseReplyMalformedJSONFallsBackToLegacy(t *testing.T) {
	raw := `Well done! [Correction: 'I goed' should be 'I went' - irregular verb]
<corrections>not valid json</corrections>`

	parsed := ParseReply(raw)

	if len(parsed.Corrections) != 1 {
		t.Fatalf("expected legacy fallback correction, got %d", len(parsed.Corrections))
	}
	c := parsed.Corrections[0]
	if c.Original != "I goed" || c.Corrected != "I went" {
		t.Errorf("unexpected legacy correction: %+v", c)
	}
}

func TestParseReplyLegacyFormat(t *testing.T) {
	raw := `Nice work! [Correction: 'he go' should be 'he goes'] Keep it up!`

	parsed := ParseReply(raw)

	if len(parsed.Corrections) != 1 {
		t.Fatalf("expected 1 correction, got %d", len(parsed.Corrections))
	}
	if parsed.Corrections[0].Explanation != "Grammar correction" {
		t.Errorf("expected default explanation, got %q", parsed.Corrections[0].Explanation)
	}
	if parsed.Content != "Nice work!  Keep it up!" {
		t.Errorf("legacy marker not stripped: %q", parsed.Content)
	}
}

func TestParseReplyNoFeedback(t *testing.T) {
	parsed := ParseReply("Just a plain reply. What about you?")

	if len(parsed.Corrections) != 0 || len(parsed.PhoneticErrors) != 0 {
		t.Errorf("expected no feedback, got %+v", parsed)
	}
	if parsed.Content != "Just a plain reply. What about you?" {
		t.Errorf("content changed: %q", parsed.Content)
	}
}

func TestParseReplyIgnoresMalformedPhoneticTags(t *testing.T) {
	raw := `Hello!<phonetic_errors>broken</phonetic_errors>`

	parsed := ParseReply(raw)

	if len(parsed.PhoneticErrors) != 0 {
		t.Errorf("expected malformed phonetic tags to be ignored, got %+v", parsed.PhoneticErrors)
	}
	if parsed.Content != "Hello!" {
		t.Errorf("tags not stripped: %q", parsed.Content)
	}
}

func TestMatchVocabulary(t *testing.T) {
	content := "Yesterday I went to the MARKET and bought some bread."

	used := MatchVocabulary(content, []string{"market", "bread", "cheese", ""})

	if len(used) != 2 {
		t.Fatalf("expected 2 matches, got %v", used)
	}
	if used[0] != "market" || used[1] != "bread" {
		t.Errorf("unexpected matches: %v", used)
	}
}

func TestMatchVocabularyEmptyFocusList(t *testing.T) {
	if used := MatchVocabulary("anything", nil); used != nil {
		t.Errorf("expected nil for empty focus list, got %v", used)
	}
}
