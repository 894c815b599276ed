package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Pod cache metrics
	CacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podcache_requests_total",
			Help: "Total number of /files requests handled by this pod, by outcome",
		},
		[]string{"outcome"}, // hit, miss_fill, preheat_denied, bad_path, origin_failed, rate_limited
	)

	CacheRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "podcache_request_duration_seconds",
			Help:    "Duration of /files requests served by this pod",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	BusySlots = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "podcache_busy_slots",
			Help: "Current occupancy of this pod's concurrency semaphore, as last observed",
		},
	)

	OriginFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podcache_origin_fetches_total",
			Help: "Total number of fetches from origin by this pod, by result",
		},
		[]string{"result"}, // ok, failed, rate_limited
	)

	// Worker scheduler metrics
	WorkerDownloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podcache_worker_downloads_total",
			Help: "Total number of worker downloads by outcome",
		},
		[]string{"outcome"}, // pod, origin_fallback, failed, digest_mismatch
	)

	WorkerDownloadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "podcache_worker_download_duration_seconds",
			Help:    "Time taken for a worker to resolve one logical path, end to end",
			Buckets: prometheus.DefBuckets,
		},
	)

	WorkerPodAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podcache_worker_pod_attempts_total",
			Help: "Total number of per-pod attempts made by workers, by result",
		},
		[]string{"result"}, // served, unhealthy, at_capacity, preheat_required, error
	)
)

func init() {
	prometheus.MustRegister(CacheRequestsTotal)
	prometheus.MustRegister(CacheRequestDuration)
	prometheus.MustRegister(BusySlots)
	prometheus.MustRegister(OriginFetchesTotal)
	prometheus.MustRegister(WorkerDownloadsTotal)
	prometheus.MustRegister(WorkerDownloadDuration)
	prometheus.MustRegister(WorkerPodAttemptsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
