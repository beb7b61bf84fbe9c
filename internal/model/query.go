package model

import (
	"encoding/json"
	"strings"
)

type IntelligenceMode string

const (
	ModeStandard IntelligenceMode = "standard"
	ModeDeep     IntelligenceMode = "deep"
	ModeTutor    IntelligenceMode = "tutor"

	DefaultMode = ModeStandard
)

// IsElevated reports whether the mode is plan-gated.
func (m IntelligenceMode) IsElevated() bool {
	return m != "" && m != ModeStandard
}

type GroundingMode string

const (
	GroundingStrict   GroundingMode = "strict"
	GroundingBalanced GroundingMode = "balanced"
)

type OutputType string

const (
	OutputSummary    OutputType = "summary"
	OutputFlashcards OutputType = "flashcards"
	OutputQuiz       OutputType = "quiz"
	OutputStudyGuide OutputType = "study_guide"
)

func (o OutputType) Valid() bool {
	switch o {
	case OutputSummary, OutputFlashcards, OutputQuiz, OutputStudyGuide:
		return true
	}
	return false
}

// Target selects what a query or generation runs against: a single document
// or a multi-document session. Exactly one field is set.
type Target struct {
	DocumentID string `json:"document_id,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
}

func (t Target) Valid() bool {
	return (t.DocumentID == "") != (t.SessionID == "")
}

// Key identifies the conversation a target belongs to.
func (t Target) Key() string {
	if t.SessionID != "" {
		return "session:" + t.SessionID
	}
	return "document:" + t.DocumentID
}

// GeneratedContent is the generation endpoint payload; the backend returns
// either a string or a structured object.
type GeneratedContent struct {
	Content json.RawMessage `json:"content"`
}

// Text renders the content for display: strings are unquoted, objects are
// indented.
func (g GeneratedContent) Text() string {
	raw := strings.TrimSpace(string(g.Content))
	if raw == "" || raw == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(g.Content, &s); err == nil {
		return s
	}
	var v interface{}
	if err := json.Unmarshal(g.Content, &v); err != nil {
		return raw
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return raw
	}
	return string(pretty)
}
