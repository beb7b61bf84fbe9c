package response

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// EventWriter writes server-sent events. Headers are sent with the first
// event so handlers can still answer with a JSON error before that.
type EventWriter struct {
	c       *gin.Context
	started bool
}

func NewEventWriter(c *gin.Context) *EventWriter {
	return &EventWriter{c: c}
}

func (w *EventWriter) Started() bool {
	return w.started
}

func (w *EventWriter) Write(event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event failed: %w", event, err)
	}
	if !w.started {
		h := w.c.Writer.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		w.c.Status(http.StatusOK)
		w.started = true
	}
	if _, err := fmt.Fprintf(w.c.Writer, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	w.c.Writer.Flush()
	return nil
}
