// Copyright 2025 LingoPilot
// SPDX-License-Identifier: BUSL-1.1

package practice

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Grammar error categories the assistant may report. Unknown categories
// normalize to "vocabulary".
var grammarCategories = map[string]bool{
	"verb_tense":             true,
	"subject_verb_agreement": true,
	"preposition":            true,
	"article":                true,
	"word_order":             true,
	"gender_agreement":       true,
	"conjugation":            true,
	"pronoun":                true,
	"plural_singular":        true,
	"spelling":               true,
	"vocabulary":             true,
}

// Correction is one structured grammar correction reported by the assistant
type Correction struct {
	Original    string `json:"original"`
	Corrected   string `json:"corrected"`
	Category    string `json:"category"`
	Explanation string `json:"explanation"`
}

// PhoneticError is a spelling mistake that suggests pronunciation confusion
type PhoneticError struct {
	Misspelled string `json:"misspelled"`
	Intended   string `json:"intended"`
	Pattern    string `json:"pattern,omitempty"`
}

// ParsedReply is the assistant output split into the conversational text
// and the structured feedback it carried
type ParsedReply struct {
	Content        string
	Corrections    []Correction
	PhoneticErrors []PhoneticError
}

var (
	correctionsTagRe  = regexp.MustCompile(`(?is)<corrections>(.*?)</corrections>`)
	phoneticTagRe     = regexp.MustCompile(`(?is)<phonetic_errors>(.*?)</phonetic_errors>`)
	legacyCorrectionRe = regexp.MustCompile(`(?i)\[Correction:\s*['"]?([^'"\]]+?)['"]?\s*should be\s*['"]?([^'"\]]+?)['"]?\s*-?\s*([^\]]*)\]`)
)

// ParseReply extracts structured corrections and phonetic errors from the
// assistant's raw output and strips the tags from the displayed content.
// Malformed tag payloads fall back to the legacy bracket format; phonetic
// parse failures are ignored.
func ParseReply(raw string) *ParsedReply {
	reply := &ParsedReply{
		Corrections:    []Correction{},
		PhoneticErrors: []PhoneticError{},
	}

	if match := correctionsTagRe.FindStringSubmatch(raw); match != nil {
		var parsed []Correction
		if err := json.Unmarshal([]byte(strings.TrimSpace(match[1])), &parsed); err == nil {
			for _, c := range parsed {
				if !grammarCategories[c.Category] {
					c.Category = "vocabulary"
				}
				c.Original = strings.TrimSpace(c.Original)
				c.Corrected = strings.TrimSpace(c.Corrected)
				c.Explanation = strings.TrimSpace(c.Explanation)
				reply.Corrections = append(reply.Corrections, c)
			}
		} else {
			reply.Corrections = append(reply.Corrections, parseLegacyCorrections(raw)...)
		}
	} else {
		reply.Corrections = append(reply.Corrections, parseLegacyCorrections(raw)...)
	}

	if match := phoneticTagRe.FindStringSubmatch(raw); match != nil {
		var parsed []PhoneticError
		if err := json.Unmarshal([]byte(strings.TrimSpace(match[1])), &parsed); err == nil {
			for _, p := range parsed {
				p.Misspelled = strings.TrimSpace(p.Misspelled)
				p.Intended = strings.TrimSpace(p.Intended)
				p.Pattern = strings.TrimSpace(p.Pattern)
				reply.PhoneticErrors = append(reply.PhoneticErrors, p)
			}
		}
	}

	content := correctionsTagRe.ReplaceAllString(raw, "")
	content = phoneticTagRe.ReplaceAllString(content, "")
	content = legacyCorrectionRe.ReplaceAllString(content, "")
	reply.Content = strings.TrimSpace(content)

	return reply
}

// parseLegacyCorrections handles the old [Correction: 'X' should be 'Y']
// format
func parseLegacyCorrections(raw string) []Correction {
	var corrections []Correction
	for _, match := range legacyCorrectionRe.FindAllStringSubmatch(raw, -1) {
		explanation := strings.TrimSpace(match[3])
		if explanation == "" {
			explanation = "Grammar correction"
		}
		corrections = append(corrections, Correction{
			Original:    strings.TrimSpace(match[1]),
			Corrected:   strings.TrimSpace(match[2]),
			Category:    "vocabulary",
			Explanation: explanation,
		})
	}
	return corrections
}

// MatchVocabulary returns the focus words that appear in the content,
// case-insensitively
func MatchVocabulary(content string, focusWords []string) []string {
	if len(focusWords) == 0 {
		return nil
	}

	contentLower := strings.ToLower(content)
	var used []string
	for _, word := range focusWords {
		if word != "" && strings.Contains(contentLower, strings.ToLower(word)) {
			used = append(used, word)
		}
	}
	return used
}
