package app

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"docchat/internal/model"
	"docchat/internal/poller"
	"docchat/internal/session"
)

type DocumentBackend interface {
	GetDocument(ctx context.Context, token, documentID string) (model.Document, error)
	ProcessDocument(ctx context.Context, token, documentID string) error
}

type DocumentViewConfig struct {
	Backend    DocumentBackend
	Tokens     session.TokenSource
	DocumentID string
	Interval   time.Duration
	Listener   func(model.Document)
	Metrics    poller.Metrics
	Logger     logrus.FieldLogger

	// Ticker replaces the interval ticker; tests drive ticks by hand.
	Ticker poller.TickerFunc
}

// DocumentView holds one document record and keeps it fresh while the
// document is still being processed.
//
// The record has a single writer at a time and the last write wins: an
// optimistic "ready" from ProcessNow is replaced by the next successful poll.
type DocumentView struct {
	cfg DocumentViewConfig
	log logrus.FieldLogger

	notifyMu sync.Mutex

	mu     sync.Mutex
	doc    model.Document
	opened bool
	closed bool
	poll   *poller.Poller
}

func NewDocumentView(cfg DocumentViewConfig) *DocumentView {
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &DocumentView{
		cfg: cfg,
		log: log.WithField("document_id", cfg.DocumentID),
		doc: model.Document{ID: cfg.DocumentID},
	}
}

// Open fetches the record and starts polling if it is not terminal. The
// poller lives until Close or until the status becomes terminal; ctx only
// bounds it from above.
func (v *DocumentView) Open(ctx context.Context) (model.Document, error) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return model.Document{}, ErrViewClosed
	}
	if v.opened {
		v.mu.Unlock()
		return model.Document{}, ErrAlreadyOpen
	}
	v.opened = true
	v.mu.Unlock()

	token, err := v.cfg.Tokens.Token(ctx)
	if err != nil {
		v.reopenable()
		return model.Document{}, err
	}
	doc, err := v.cfg.Backend.GetDocument(ctx, token, v.cfg.DocumentID)
	if err != nil {
		v.reopenable()
		return model.Document{}, err
	}

	opts := []poller.Option{
		poller.WithInterval(v.cfg.Interval),
		poller.WithLogger(v.log),
	}
	if v.cfg.Metrics != nil {
		opts = append(opts, poller.WithMetrics(v.cfg.Metrics))
	}
	if v.cfg.Ticker != nil {
		opts = append(opts, poller.WithTicker(v.cfg.Ticker))
	}
	p := poller.New(v.cfg.Backend, v.cfg.Tokens, v.apply, opts...)

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return model.Document{}, ErrViewClosed
	}
	v.doc = doc
	v.poll = p
	v.mu.Unlock()
	v.notify()

	p.Start(ctx, doc)
	return doc, nil
}

// reopenable lets a failed Open be retried.
func (v *DocumentView) reopenable() {
	v.mu.Lock()
	v.opened = false
	v.mu.Unlock()
}

func (v *DocumentView) Document() model.Document {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.doc
}

// Done is closed once polling has stopped, either on a terminal status or on
// Close. Before Open it returns nil.
func (v *DocumentView) Done() <-chan struct{} {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.poll == nil {
		return nil
	}
	return v.poll.Done()
}

// ProcessNow asks the backend to (re)process the document and, on success,
// marks it ready locally without waiting for the next poll.
func (v *DocumentView) ProcessNow(ctx context.Context) error {
	token, err := v.cfg.Tokens.Token(ctx)
	if err != nil {
		return err
	}
	if err := v.cfg.Backend.ProcessDocument(ctx, token, v.cfg.DocumentID); err != nil {
		return err
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrViewClosed
	}
	v.doc = v.doc.WithStatus(model.StatusReady)
	v.mu.Unlock()
	v.notify()
	return nil
}

// Close stops polling. Updates that arrive afterwards are dropped.
func (v *DocumentView) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	p := v.poll
	v.mu.Unlock()

	if p != nil {
		p.Stop()
	}
}

func (v *DocumentView) apply(doc model.Document) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.doc = doc
	v.mu.Unlock()
	v.notify()
}

func (v *DocumentView) notify() {
	if v.cfg.Listener == nil {
		return
	}
	v.notifyMu.Lock()
	defer v.notifyMu.Unlock()
	v.cfg.Listener(v.Document())
}
