package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"docchat/internal/app"
	"docchat/internal/model"
	"docchat/internal/poller"
	"docchat/internal/session"
	"docchat/internal/transport/http/middleware"
	"docchat/internal/transport/http/response"
)

type DocumentHandler struct {
	backend  app.DocumentBackend
	interval time.Duration
	metrics  poller.Metrics
	ticker   poller.TickerFunc
	log      logrus.FieldLogger
}

type DocumentOption func(*DocumentHandler)

func WithPollInterval(d time.Duration) DocumentOption {
	return func(h *DocumentHandler) {
		h.interval = d
	}
}

func WithPollMetrics(m poller.Metrics) DocumentOption {
	return func(h *DocumentHandler) {
		h.metrics = m
	}
}

// WithPollTicker replaces the interval ticker used by Watch.
func WithPollTicker(fn poller.TickerFunc) DocumentOption {
	return func(h *DocumentHandler) {
		h.ticker = fn
	}
}

func NewDocumentHandler(backend app.DocumentBackend, log logrus.FieldLogger, opts ...DocumentOption) *DocumentHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	h := &DocumentHandler{
		backend:  backend,
		interval: poller.DefaultInterval,
		log:      log,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.backend.GetDocument(c.Request.Context(), middleware.Token(c), c.Param("id"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, doc)
}

// Process triggers processing and answers with the optimistic record.
func (h *DocumentHandler) Process(c *gin.Context) {
	view := h.newView(c, nil)
	defer view.Close()

	if err := view.ProcessNow(c.Request.Context()); err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, view.Document())
}

// Watch streams a status event for the current record and for every poll
// after it, until the status is terminal or the client goes away.
func (h *DocumentHandler) Watch(c *gin.Context) {
	events := response.NewEventWriter(c)
	view := h.newView(c, func(doc model.Document) {
		if err := events.Write("status", doc); err != nil {
			_ = c.Error(err)
		}
	})
	defer view.Close()

	if _, err := view.Open(c.Request.Context()); err != nil {
		response.Fail(c, err)
		return
	}

	select {
	case <-view.Done():
	case <-c.Request.Context().Done():
	}
}

func (h *DocumentHandler) newView(c *gin.Context, listener func(model.Document)) *app.DocumentView {
	return app.NewDocumentView(app.DocumentViewConfig{
		Backend:    h.backend,
		Tokens:     session.StaticSource(middleware.Token(c)),
		DocumentID: c.Param("id"),
		Interval:   h.interval,
		Listener:   listener,
		Metrics:    h.metrics,
		Logger:     middleware.Log(c, h.log),
		Ticker:     h.ticker,
	})
}
