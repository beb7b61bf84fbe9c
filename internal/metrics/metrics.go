package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry so several instances (tests, the CLI)
// never collide on the default one.
type Collector struct {
	registry *prometheus.Registry

	streamFrames      prometheus.Counter
	streamMalformed   prometheus.Counter
	streamCompletions *prometheus.CounterVec
	pollTicks         *prometheus.CounterVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

func NewCollector(serviceName string) *Collector {
	ns := strings.ReplaceAll(serviceName, "-", "_")
	c := &Collector{registry: prometheus.NewRegistry()}

	c.streamFrames = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "stream_frames_total",
		Help:      "data frames read from answer streams",
	})
	c.streamMalformed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "stream_frames_malformed_total",
		Help:      "data frames skipped because their JSON did not parse",
	})
	c.streamCompletions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "stream_completions_total",
		Help:      "answer streams by outcome",
	}, []string{"outcome"})
	c.pollTicks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "status_poll_ticks_total",
		Help:      "document status poll ticks by outcome",
	}, []string{"outcome"})
	c.httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"method", "endpoint", "status"})
	c.httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "endpoint"})

	c.registry.MustRegister(
		c.streamFrames,
		c.streamMalformed,
		c.streamCompletions,
		c.pollTicks,
		c.httpRequestsTotal,
		c.httpRequestDuration,
	)
	return c
}

func (c *Collector) FrameReceived()  { c.streamFrames.Inc() }
func (c *Collector) FrameMalformed() { c.streamMalformed.Inc() }

func (c *Collector) StreamCompleted(outcome string) {
	c.streamCompletions.WithLabelValues(outcome).Inc()
}

func (c *Collector) PollTick(outcome string) {
	c.pollTicks.WithLabelValues(outcome).Inc()
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Middleware records request count and latency per route template.
func (c *Collector) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		endpoint := ctx.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		status := strconv.Itoa(ctx.Writer.Status())
		c.httpRequestsTotal.WithLabelValues(ctx.Request.Method, endpoint, status).Inc()
		c.httpRequestDuration.WithLabelValues(ctx.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}
