package model

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"

	DefaultConfidence = ConfidenceMedium
)

// ParseConfidence lowercases s and reports whether it names a known label.
func ParseConfidence(s string) (Confidence, bool) {
	c := Confidence(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return c, true
	}
	return "", false
}

// ChatMessage is one finished turn of a conversation. It is never mutated
// after creation.
type ChatMessage struct {
	ID               string     `json:"id"`
	Role             Role       `json:"role"`
	Content          string     `json:"content"`
	Sources          []Source   `json:"sources,omitempty"`
	Confidence       Confidence `json:"confidence,omitempty"`
	GroundingWarning string     `json:"grounding_warning,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

type Source struct {
	ChunkID    string  `json:"chunk_id"`
	Text       string  `json:"text"`
	Similarity float64 `json:"similarity"`
	Page       *int    `json:"page_number,omitempty"`
	DocumentID string  `json:"document_id,omitempty"`
}

func NewUserMessage(content string) ChatMessage {
	now := time.Now()
	return ChatMessage{
		ID:        NextMessageID(now),
		Role:      RoleUser,
		Content:   content,
		CreatedAt: now,
	}
}

func NewAssistantMessage(content string, sources []Source, confidence Confidence, warning string) ChatMessage {
	if confidence == "" {
		confidence = DefaultConfidence
	}
	if sources == nil {
		sources = []Source{}
	}
	now := time.Now()
	return ChatMessage{
		ID:               NextMessageID(now),
		Role:             RoleAssistant,
		Content:          content,
		Sources:          sources,
		Confidence:       confidence,
		GroundingWarning: warning,
		CreatedAt:        now,
	}
}

var (
	idMu   sync.Mutex
	lastID int64
)

// NextMessageID returns the millisecond timestamp of now as a string, bumped
// past the previously issued value so IDs stay unique within the process.
func NextMessageID(now time.Time) string {
	idMu.Lock()
	defer idMu.Unlock()

	id := now.UnixMilli()
	if id <= lastID {
		id = lastID + 1
	}
	lastID = id
	return strconv.FormatInt(id, 10)
}
