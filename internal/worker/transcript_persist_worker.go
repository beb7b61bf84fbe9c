package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"docchat/internal/model"
	"docchat/internal/platform/rabbitmq"
)

var errUndecodable = errors.New("undecodable transcript payload")

type TranscriptStore interface {
	Create(msg *model.TranscriptMessage) error
}

// TranscriptPersistWorker drains the transcript queue into the store. Bad
// payloads and failed writes are nacked without requeue.
type TranscriptPersistWorker struct {
	conn      *amqp.Connection
	store     TranscriptStore
	queueName string
	log       logrus.FieldLogger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTranscriptPersistWorker(conn *amqp.Connection, store TranscriptStore, queueName string, log logrus.FieldLogger) *TranscriptPersistWorker {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &TranscriptPersistWorker{
		conn:      conn,
		store:     store,
		queueName: queueName,
		log:       log.WithField("queue", queueName),
	}
}

func (w *TranscriptPersistWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()
		w.consume(workerCtx, deliveries)
	}()

	return nil
}

func (w *TranscriptPersistWorker) consume(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			if err := w.handle(d.Body); err != nil {
				w.log.WithError(err).WithField("message_id", d.MessageId).Warn("persist transcript failed")
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (w *TranscriptPersistWorker) handle(body []byte) error {
	var msg model.TranscriptMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: %v", errUndecodable, err)
	}
	if msg.ConversationKey == "" || msg.Subject == "" {
		return fmt.Errorf("%w: missing conversation key or subject", errUndecodable)
	}
	// the publisher's row id is meaningless here
	msg.ID = 0
	return w.store.Create(&msg)
}

func (w *TranscriptPersistWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
