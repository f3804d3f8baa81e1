package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_http_requests_total",
			Help: "Total number of HTTP requests processed by the messaging service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "messaging_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "messaging_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_ws_events_total",
			Help: "Total number of websocket lifecycle events.",
		},
		[]string{"event"},
	)
	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_frames_total",
			Help: "Total number of websocket frames by direction and type.",
		},
		[]string{"direction", "type"},
	)
	droppedFramesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "messaging_transport_dropped_frames_total",
			Help: "Outbound frames dropped because the channel was not ready.",
		},
	)
	reconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "messaging_transport_reconnects_total",
			Help: "Total number of transport reconnect attempts.",
		},
	)
	readMarkFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "messaging_readmark_failures_total",
			Help: "Read-mark REST calls that failed after an optimistic local update.",
		},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "messaging_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsEventsTotal,
		framesTotal,
		droppedFramesTotal,
		reconnectsTotal,
		readMarkFailuresTotal,
		amqpPublishErrorsTotal,
	)
}

// HTTPMetricsMiddleware records request counts and latency per route.
func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncWSActive() { wsActiveConnections.Inc() }
func DecWSActive() { wsActiveConnections.Dec() }

func IncWSEvent(event string) {
	wsEventsTotal.WithLabelValues(event).Inc()
}

func IncFrameReceived(frameType string) {
	framesTotal.WithLabelValues("in", frameType).Inc()
}

func IncFrameSent(frameType string) {
	framesTotal.WithLabelValues("out", frameType).Inc()
}

func IncDroppedFrame() { droppedFramesTotal.Inc() }

func IncReconnect() { reconnectsTotal.Inc() }

func IncReadMarkFailure() { readMarkFailuresTotal.Inc() }

func IncAMQPPublishError() { amqpPublishErrorsTotal.Inc() }
