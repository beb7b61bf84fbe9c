package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"

	"docchat/internal/logging"
	"docchat/internal/model"
)

type memStore struct {
	saved []model.TranscriptMessage
	err   error
}

func (s *memStore) Create(msg *model.TranscriptMessage) error {
	if s.err != nil {
		return s.err
	}
	msg.ID = uint(len(s.saved) + 1)
	s.saved = append(s.saved, *msg)
	return nil
}

type ackRecorder struct {
	acks, nacks int
	done        chan struct{}
}

func (a *ackRecorder) Ack(tag uint64, multiple bool) error {
	a.acks++
	a.done <- struct{}{}
	return nil
}

func (a *ackRecorder) Nack(tag uint64, multiple, requeue bool) error {
	a.nacks++
	a.done <- struct{}{}
	return nil
}

func (a *ackRecorder) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func newWorker(store TranscriptStore) *TranscriptPersistWorker {
	return NewTranscriptPersistWorker(nil, store, "docchat.transcript.persist", logging.Discard())
}

func TestHandleStoresTranscript(t *testing.T) {
	store := &memStore{}
	w := newWorker(store)

	msg, err := model.NewTranscriptMessage("document:d1", "user-1", model.NewUserMessage("hi"))
	require.NoError(t, err)
	msg.ID = 42
	body, err := json.Marshal(msg)
	require.NoError(t, err)

	require.NoError(t, w.handle(body))
	require.Len(t, store.saved, 1)
	require.Equal(t, uint(1), store.saved[0].ID)
	require.Equal(t, "hi", store.saved[0].Content)
	require.Equal(t, "document:d1", store.saved[0].ConversationKey)
}

func TestHandleRejectsBadPayloads(t *testing.T) {
	w := newWorker(&memStore{})

	require.ErrorIs(t, w.handle([]byte("{oops")), errUndecodable)
	require.ErrorIs(t, w.handle([]byte(`{"content":"x"}`)), errUndecodable)
}

func TestConsumeAcksAndNacks(t *testing.T) {
	store := &memStore{}
	w := newWorker(store)
	acker := &ackRecorder{done: make(chan struct{}, 4)}

	good, err := json.Marshal(model.TranscriptMessage{ConversationKey: "session:s", Subject: "u", Role: "user", Content: "q"})
	require.NoError(t, err)

	deliveries := make(chan amqp.Delivery, 2)
	deliveries <- amqp.Delivery{Acknowledger: acker, Body: good}
	deliveries <- amqp.Delivery{Acknowledger: acker, Body: []byte("nope")}
	close(deliveries)

	w.consume(context.Background(), deliveries)

	require.Equal(t, 1, acker.acks)
	require.Equal(t, 1, acker.nacks)
	require.Len(t, store.saved, 1)
}

func TestConsumeNacksStoreFailures(t *testing.T) {
	w := newWorker(&memStore{err: errors.New("db down")})
	acker := &ackRecorder{done: make(chan struct{}, 1)}

	body, err := json.Marshal(model.TranscriptMessage{ConversationKey: "session:s", Subject: "u"})
	require.NoError(t, err)

	deliveries := make(chan amqp.Delivery, 1)
	deliveries <- amqp.Delivery{Acknowledger: acker, Body: body}

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		w.consume(ctx, deliveries)
		close(finished)
	}()

	select {
	case <-acker.done:
	case <-time.After(time.Second):
		t.Fatal("delivery was not settled")
	}
	cancel()
	<-finished
	require.Equal(t, 1, acker.nacks)
}
