package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"docchat/internal/app"
	"docchat/internal/model"
	"docchat/internal/session"
	"docchat/internal/stream"
	"docchat/internal/transport/http/middleware"
	"docchat/internal/transport/http/response"
)

type HistoryReader interface {
	History(ctx context.Context, subject, conversationKey string, limit int) ([]model.ChatMessage, error)
}

// RecorderFactory hands out a transcript recorder bound to one user.
type RecorderFactory interface {
	RecorderFor(subject string) app.Recorder
}

type ChatHandler struct {
	backend   app.QueryBackend
	recorders RecorderFactory
	history   HistoryReader
	metrics   stream.Metrics
	log       logrus.FieldLogger
}

type QueryRequest struct {
	DocumentID       string                 `json:"document_id"`
	SessionID        string                 `json:"session_id"`
	UserQuery        string                 `json:"user_query" binding:"required"`
	IntelligenceMode model.IntelligenceMode `json:"intelligence_mode"`
	GroundingMode    model.GroundingMode    `json:"grounding_mode"`
}

type GenerateRequest struct {
	DocumentID string           `json:"document_id"`
	SessionID  string           `json:"session_id"`
	OutputType model.OutputType `json:"output_type" binding:"required"`
}

type GenerateResponse struct {
	OutputType model.OutputType `json:"output_type"`
	Content    interface{}      `json:"content"`
	Text       string           `json:"text"`
}

type partialEvent struct {
	Text string `json:"text"`
}

type errorEvent struct {
	Message  string       `json:"message,omitempty"`
	Redirect app.Redirect `json:"redirect,omitempty"`
}

// NewChatHandler wires the chat endpoints. recorders, history and metrics may
// be nil.
func NewChatHandler(backend app.QueryBackend, recorders RecorderFactory, history HistoryReader, metrics stream.Metrics, log logrus.FieldLogger) *ChatHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ChatHandler{
		backend:   backend,
		recorders: recorders,
		history:   history,
		metrics:   metrics,
		log:       log,
	}
}

// Query relays one question as a server-sent event stream of partial, final
// or error events. Failures before the first event are plain JSON errors.
func (h *ChatHandler) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	events := response.NewEventWriter(c)
	lastPartial := ""
	view, err := h.newView(c, model.Target{DocumentID: req.DocumentID, SessionID: req.SessionID}, req.IntelligenceMode, req.GroundingMode, func(s app.ChatSnapshot) {
		if !s.Streaming || s.Partial == "" || s.Partial == lastPartial {
			return
		}
		lastPartial = s.Partial
		if err := events.Write("partial", partialEvent{Text: s.Partial}); err != nil {
			_ = c.Error(err)
		}
	})
	if err != nil {
		response.Fail(c, err)
		return
	}
	defer view.Close()

	final, err := view.Submit(c.Request.Context(), req.UserQuery)
	if err != nil {
		if !events.Started() {
			response.Fail(c, err)
			return
		}
		snap := view.Snapshot()
		msg := snap.Error
		if msg == "" && snap.Redirect == app.RedirectNone {
			_, _, msg = response.Status(err)
		}
		_ = events.Write("error", errorEvent{Message: msg, Redirect: snap.Redirect})
		return
	}
	if err := events.Write("final", final); err != nil {
		_ = c.Error(err)
	}
}

func (h *ChatHandler) Generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	view, err := h.newView(c, model.Target{DocumentID: req.DocumentID, SessionID: req.SessionID}, "", "", nil)
	if err != nil {
		response.Fail(c, err)
		return
	}
	defer view.Close()

	out, err := view.Generate(c.Request.Context(), req.OutputType)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, GenerateResponse{
		OutputType: req.OutputType,
		Content:    out.Content,
		Text:       out.Text(),
	})
}

// History returns the stored transcript of conversation_id, which is a
// target key such as "document:<id>" or "session:<id>".
func (h *ChatHandler) History(c *gin.Context) {
	if h.history == nil {
		response.Error(c, http.StatusServiceUnavailable, response.CodeUnavailable, "history is not available")
		return
	}

	conversationID := c.Query("conversation_id")
	if conversationID == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid conversation_id")
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, parseErr := strconv.Atoi(raw); parseErr == nil {
			limit = parsed
		}
	}

	messages, err := h.history.History(c.Request.Context(), middleware.Subject(c), conversationID, limit)
	if err != nil {
		middleware.Log(c, h.log).WithError(err).Warn("load history failed")
		response.Fail(c, err)
		return
	}
	response.OK(c, messages)
}

func (h *ChatHandler) newView(c *gin.Context, target model.Target, mode model.IntelligenceMode, grounding model.GroundingMode, listener func(app.ChatSnapshot)) (*app.ChatView, error) {
	var recorder app.Recorder
	if h.recorders != nil {
		recorder = h.recorders.RecorderFor(middleware.Subject(c))
	}
	return app.NewChatView(app.ChatViewConfig{
		Backend:   h.backend,
		Tokens:    session.StaticSource(middleware.Token(c)),
		Target:    target,
		Mode:      mode,
		Grounding: grounding,
		Listener:  listener,
		Recorder:  recorder,
		Metrics:   h.metrics,
		Logger:    middleware.Log(c, h.log),
	})
}
