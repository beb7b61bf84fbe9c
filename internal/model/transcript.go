package model

import (
	"encoding/json"
	"time"
)

// TranscriptMessage is the persisted form of a finished ChatMessage.
type TranscriptMessage struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	MessageID        string    `gorm:"size:32;not null;index" json:"message_id"`
	ConversationKey  string    `gorm:"size:160;not null;index" json:"conversation_key"`
	Subject          string    `gorm:"size:128;not null;index" json:"subject"`
	Role             string    `gorm:"size:16;not null" json:"role"`
	Content          string    `gorm:"type:text;not null" json:"content"`
	Confidence       string    `gorm:"size:16" json:"confidence,omitempty"`
	GroundingWarning string    `gorm:"type:text" json:"grounding_warning,omitempty"`
	SourcesJSON      string    `gorm:"type:text" json:"sources_json,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func NewTranscriptMessage(conversationKey, subject string, msg ChatMessage) (TranscriptMessage, error) {
	tm := TranscriptMessage{
		MessageID:        msg.ID,
		ConversationKey:  conversationKey,
		Subject:          subject,
		Role:             string(msg.Role),
		Content:          msg.Content,
		Confidence:       string(msg.Confidence),
		GroundingWarning: msg.GroundingWarning,
		CreatedAt:        msg.CreatedAt,
	}
	if len(msg.Sources) > 0 {
		raw, err := json.Marshal(msg.Sources)
		if err != nil {
			return TranscriptMessage{}, err
		}
		tm.SourcesJSON = string(raw)
	}
	return tm, nil
}

// ChatMessage converts back to the in-memory form. Undecodable sources are
// dropped rather than failing the whole history read.
func (t TranscriptMessage) ChatMessage() ChatMessage {
	msg := ChatMessage{
		ID:               t.MessageID,
		Role:             Role(t.Role),
		Content:          t.Content,
		Confidence:       Confidence(t.Confidence),
		GroundingWarning: t.GroundingWarning,
		CreatedAt:        t.CreatedAt,
	}
	if t.SourcesJSON != "" {
		var sources []Source
		if err := json.Unmarshal([]byte(t.SourcesJSON), &sources); err == nil {
			msg.Sources = sources
		}
	}
	return msg
}
