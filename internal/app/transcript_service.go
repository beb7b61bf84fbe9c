package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"docchat/internal/model"
)

type TranscriptPublisher interface {
	Publish(ctx context.Context, msg model.TranscriptMessage) error
}

type TranscriptReader interface {
	ListByConversation(subject, conversationKey string, limit int) ([]model.TranscriptMessage, error)
}

type HistoryCache interface {
	GetHistory(ctx context.Context, subject, conversationKey string) ([]model.ChatMessage, bool, error)
	SetHistory(ctx context.Context, subject, conversationKey string, messages []model.ChatMessage) error
	DeleteHistory(ctx context.Context, subject, conversationKey string) error
	MarkDirty(ctx context.Context, subject, conversationKey string) error
	IsDirty(ctx context.Context, subject, conversationKey string) (bool, error)
}

// TranscriptService queues finished exchanges for persistence and serves
// conversation history, preferring the cache unless a write is pending.
type TranscriptService struct {
	publisher TranscriptPublisher
	reader    TranscriptReader
	cache     HistoryCache
	log       logrus.FieldLogger
}

func NewTranscriptService(publisher TranscriptPublisher, reader TranscriptReader, cache HistoryCache, log logrus.FieldLogger) *TranscriptService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &TranscriptService{
		publisher: publisher,
		reader:    reader,
		cache:     cache,
		log:       log,
	}
}

// RecorderFor binds the service to one user so it can be handed to a
// ChatView.
func (s *TranscriptService) RecorderFor(subject string) Recorder {
	return subjectRecorder{svc: s, subject: subject}
}

func (s *TranscriptService) Record(ctx context.Context, subject string, target model.Target, messages ...model.ChatMessage) error {
	key := target.Key()
	if subject == "" || !target.Valid() {
		return ErrNoConversation
	}
	if s.publisher == nil {
		return ErrTranscriptEnqueue
	}
	if s.cache != nil {
		if err := s.cache.MarkDirty(ctx, subject, key); err != nil {
			s.log.WithError(err).WithField("conversation", key).Warn("mark history dirty failed")
		}
		if err := s.cache.DeleteHistory(ctx, subject, key); err != nil {
			s.log.WithError(err).WithField("conversation", key).Warn("delete cached history failed")
		}
	}

	for _, msg := range messages {
		tm, err := model.NewTranscriptMessage(key, subject, msg)
		if err != nil {
			return fmt.Errorf("encode transcript message failed: %w", err)
		}
		if err := s.publisher.Publish(ctx, tm); err != nil {
			return fmt.Errorf("%w: %v", ErrTranscriptEnqueue, err)
		}
	}
	return nil
}

// History returns up to limit messages of one conversation, oldest first.
func (s *TranscriptService) History(ctx context.Context, subject, conversationKey string, limit int) ([]model.ChatMessage, error) {
	if subject == "" || conversationKey == "" {
		return nil, ErrNoConversation
	}

	if s.cache != nil {
		dirty, err := s.cache.IsDirty(ctx, subject, conversationKey)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.cache.GetHistory(ctx, subject, conversationKey); cacheErr == nil && hit {
				return trimMessages(cached, limit), nil
			}
		}
	}

	rows, err := s.reader.ListByConversation(subject, conversationKey, limit)
	if err != nil {
		return nil, err
	}
	messages := make([]model.ChatMessage, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, row.ChatMessage())
	}

	if s.cache != nil {
		if dirty, err := s.cache.IsDirty(ctx, subject, conversationKey); err == nil && !dirty {
			if err := s.cache.SetHistory(ctx, subject, conversationKey, messages); err != nil {
				s.log.WithError(err).WithField("conversation", conversationKey).Debug("fill history cache failed")
			}
		}
	}
	return messages, nil
}

func trimMessages(messages []model.ChatMessage, limit int) []model.ChatMessage {
	if limit <= 0 || limit >= len(messages) {
		return messages
	}
	return messages[len(messages)-limit:]
}

type subjectRecorder struct {
	svc     *TranscriptService
	subject string
}

func (r subjectRecorder) Record(ctx context.Context, target model.Target, messages ...model.ChatMessage) error {
	return r.svc.Record(ctx, r.subject, target, messages...)
}
