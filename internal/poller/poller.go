// Package poller keeps a document's processing status fresh until it reaches
// a terminal state.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"docchat/internal/model"
	"docchat/internal/session"
)

const DefaultInterval = 3 * time.Second

type Fetcher interface {
	GetDocument(ctx context.Context, token, documentID string) (model.Document, error)
}

// Metrics records one outcome per tick: "updated", "terminal", "skipped",
// "failed".
type Metrics interface {
	PollTick(outcome string)
}

// TickerFunc returns a tick channel and a stop function.
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

type Option func(*Poller)

func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

func WithTicker(fn TickerFunc) Option {
	return func(p *Poller) {
		p.ticker = fn
	}
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Poller) {
		p.log = l
	}
}

func WithMetrics(m Metrics) Option {
	return func(p *Poller) {
		p.metrics = m
	}
}

// Poller re-fetches one document on a fixed interval. A Poller runs at most
// once; build a new one to poll again.
type Poller struct {
	fetch    Fetcher
	tokens   session.TokenSource
	onUpdate func(model.Document)
	interval time.Duration
	ticker   TickerFunc
	log      logrus.FieldLogger
	metrics  Metrics

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New builds a poller. onUpdate receives every successfully fetched record,
// including the terminal one, and is never called after Stop returns.
func New(fetch Fetcher, tokens session.TokenSource, onUpdate func(model.Document), opts ...Option) *Poller {
	p := &Poller{
		fetch:    fetch,
		tokens:   tokens,
		onUpdate: onUpdate,
		interval: DefaultInterval,
		ticker:   realTicker,
		log:      logrus.StandardLogger(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start begins polling doc. Nothing is scheduled when doc is already
// terminal. Calling Start twice is a no-op.
func (p *Poller) Start(ctx context.Context, doc model.Document) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	if doc.Status.IsTerminal() {
		close(p.done)
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	go p.loop(loopCtx, doc.ID, doc.Status)
}

// Stop cancels polling and waits for the loop to exit. Safe to call more
// than once and before Start.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.started {
		p.started = true
		close(p.done)
	}
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	<-p.done
}

// Done is closed when the loop has exited.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

func (p *Poller) loop(ctx context.Context, documentID string, status model.DocumentStatus) {
	defer close(p.done)

	ticks, stopTicker := p.ticker(p.interval)
	defer stopTicker()

	log := p.log.WithField("document_id", documentID)
	for !status.IsTerminal() {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
		}

		next, ok := p.tick(ctx, log, documentID)
		if !ok {
			continue
		}
		status = next
	}
	log.WithField("status", status).Debug("document reached terminal status")
}

func (p *Poller) tick(ctx context.Context, log logrus.FieldLogger, documentID string) (model.DocumentStatus, bool) {
	token, err := p.tokens.Token(ctx)
	if err != nil {
		if !errors.Is(err, session.ErrNoSession) {
			log.WithError(err).Warn("get session token failed")
		}
		p.record("skipped")
		return "", false
	}

	doc, err := p.fetch.GetDocument(ctx, token, documentID)
	if ctx.Err() != nil {
		return "", false
	}
	if err != nil {
		log.WithError(err).Debug("poll document failed")
		p.record("failed")
		return "", false
	}

	if doc.Status.IsTerminal() {
		p.record("terminal")
	} else {
		p.record("updated")
	}
	if p.onUpdate != nil {
		p.onUpdate(doc)
	}
	return doc.Status, true
}

func (p *Poller) record(outcome string) {
	if p.metrics != nil {
		p.metrics.PollTick(outcome)
	}
}
