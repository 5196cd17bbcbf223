package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/SulmanK/concept-visualizer-sub002/internal/ratelimit"
)

type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RateLimited     *prometheus.CounterVec
	LimiterErrors   prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conceptgate_requests_total",
				Help: "Total HTTP requests processed by the gateway",
			},
			[]string{"endpoint", "method", "code"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conceptgate_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint", "method"},
		),
		RateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conceptgate_rate_limited_total",
				Help: "Total requests rejected because a quota was exceeded",
			},
			[]string{"endpoint"},
		),
		LimiterErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "conceptgate_limiter_errors_total",
				Help: "Total limiter failures that caused a fail-open pass-through",
			},
		),
	}

	reg.MustRegister(m.RequestsTotal, m.RequestDuration, m.RateLimited, m.LimiterErrors)
	return m
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Middleware records per-request metrics, labeled by the normalized endpoint
// so prefix variants of the same logical route share a series.
func (m *Metrics) Middleware(skip func(path string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip != nil && skip(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}

			next.ServeHTTP(rec, r)

			endpoint := ratelimit.NormalizeEndpoint(r.URL.Path)
			method := r.Method
			code := rec.status
			if code == 0 {
				code = http.StatusOK
			}

			m.RequestDuration.WithLabelValues(endpoint, method).Observe(time.Since(start).Seconds())
			m.RequestsTotal.WithLabelValues(endpoint, method, strconv.Itoa(code)).Inc()
		})
	}
}
