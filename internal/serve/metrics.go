package serve

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docuchat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docuchat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	wsConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "docuchat_ws_connections",
			Help: "Open websocket connections",
		},
	)

	wsFramesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docuchat_ws_frames_sent_total",
			Help: "Websocket frames sent, by frame type",
		},
		[]string{"type"},
	)

	chatMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docuchat_chat_messages_total",
			Help: "Chat messages answered, by transport and model",
		},
		[]string{"transport", "model"},
	)

	rateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docuchat_rate_limit_hits_total",
			Help: "Requests rejected by the rate limiter",
		},
	)
)

// metricsMiddleware records request counts and latency. Paths are taken
// from the matched chi route to keep label cardinality bounded.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
