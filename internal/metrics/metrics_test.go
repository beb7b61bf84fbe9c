package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestStreamAndPollCounters(t *testing.T) {
	c := NewCollector("doc-chat")
	c.FrameReceived()
	c.FrameReceived()
	c.FrameMalformed()
	c.StreamCompleted("completed")
	c.PollTick("skipped")
	c.PollTick("skipped")

	require.Equal(t, 2.0, testutil.ToFloat64(c.streamFrames))
	require.Equal(t, 1.0, testutil.ToFloat64(c.streamMalformed))
	require.Equal(t, 1.0, testutil.ToFloat64(c.streamCompletions.WithLabelValues("completed")))
	require.Equal(t, 2.0, testutil.ToFloat64(c.pollTicks.WithLabelValues("skipped")))
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c := NewCollector("docchat")

	r := gin.New()
	r.Use(c.Middleware())
	r.GET("/ping", func(ctx *gin.Context) { ctx.String(http.StatusOK, "pong") })
	r.GET("/metrics", gin.WrapH(c.Handler()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("GET", "/ping", "200")))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "docchat_http_requests_total")
}
