// Package metrics records Prometheus metrics for provider calls, vector
// search and chat requests. A nil *Recorder is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "paperwhisper"

type Recorder struct {
	registry *prometheus.Registry

	providerCalls   *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	searchLatency   *prometheus.HistogramVec
	chatRequests    *prometheus.CounterVec
	chunksIndexed   prometheus.Counter
	summaryRuns     *prometheus.CounterVec
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r := &Recorder{registry: reg}

	r.providerCalls = promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "calls_total",
			Help:      "LLM and embedding provider calls by provider, operation and outcome.",
		},
		[]string{"provider", "operation", "outcome"},
	)
	r.providerLatency = promauto.With(reg).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "call_duration_seconds",
			Help:      "Provider call latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider", "operation"},
	)
	r.searchLatency = promauto.With(reg).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "vector",
			Name:      "search_duration_seconds",
			Help:      "Vector search latency by backend.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "outcome"},
	)
	r.chatRequests = promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "chat_requests_total",
			Help:      "Chat requests by mode (blocking, stream) and outcome.",
		},
		[]string{"mode", "outcome"},
	)
	r.chunksIndexed = promauto.With(reg).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vector",
			Name:      "chunks_indexed_total",
			Help:      "Chunks written to the vector store.",
		},
	)
	r.summaryRuns = promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "summary",
			Name:      "runs_total",
			Help:      "Summarization and translation runs by job and final status.",
		},
		[]string{"job", "status"},
	)
	return r
}

func (r *Recorder) ObserveProvider(provider, operation, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.providerCalls.WithLabelValues(provider, operation, outcome).Inc()
	r.providerLatency.WithLabelValues(provider, operation).Observe(d.Seconds())
}

func (r *Recorder) ObserveSearch(backend, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.searchLatency.WithLabelValues(backend, outcome).Observe(d.Seconds())
}

func (r *Recorder) IncChat(mode, outcome string) {
	if r == nil {
		return
	}
	r.chatRequests.WithLabelValues(mode, outcome).Inc()
}

func (r *Recorder) AddChunksIndexed(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.chunksIndexed.Add(float64(n))
}

func (r *Recorder) IncJob(job, status string) {
	if r == nil {
		return
	}
	r.summaryRuns.WithLabelValues(job, status).Inc()
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Outcome maps an error to a metric label.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}
