// Package metrics provides Prometheus metrics for the filelist server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filelist_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "filelist_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Directory cache metrics
	cacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filelist_dircache_hits_total",
			Help: "Directory listings served from the mtime-keyed cache",
		},
	)

	cacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filelist_dircache_misses_total",
			Help: "Directory listings that required a filesystem rescan",
		},
	)

	cacheSlots = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "filelist_dircache_slots",
			Help: "Number of cached directory slots in this worker",
		},
	)

	scanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "filelist_dircache_scan_duration_seconds",
			Help:    "Time to rescan one directory",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Download metrics
	downloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filelist_downloads_total",
			Help: "Total file downloads",
		},
		[]string{"namespace"},
	)

	// Sharing metrics
	shareLinksActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "filelist_share_links_active",
			Help: "Number of unexpired share links",
		},
	)

	shareResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filelist_share_resolutions_total",
			Help: "Share link resolutions by outcome",
		},
		[]string{"outcome"},
	)

	// Sandbox metrics
	sandboxRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filelist_sandbox_rejections_total",
			Help: "Path resolutions rejected for traversal outside a namespace root",
		},
	)

	// Worker pool metrics
	poolTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filelist_pool_tasks_total",
			Help: "Offloaded tasks by outcome",
		},
		[]string{"outcome"},
	)

	poolQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "filelist_pool_queue_depth",
			Help: "Tasks waiting for a pool worker",
		},
	)

	// Shutdown metrics
	drainDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "filelist_drain_duration_seconds",
			Help:    "Time spent draining a worker on shutdown",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)
)

// RecordCacheHit records a listing served without rescanning.
func RecordCacheHit() { cacheHitsTotal.Inc() }

// RecordCacheMiss records a listing that triggered a rescan.
func RecordCacheMiss() { cacheMissesTotal.Inc() }

// SetCacheSlots sets the number of live cache slots.
func SetCacheSlots(n int) { cacheSlots.Set(float64(n)) }

// ObserveScan records the duration of one directory rescan.
func ObserveScan(d time.Duration) { scanDuration.Observe(d.Seconds()) }

// RecordDownload records a successful file download.
func RecordDownload(namespace string) { downloadsTotal.WithLabelValues(namespace).Inc() }

// SetShareLinksActive sets the active share link gauge.
func SetShareLinksActive(n int64) { shareLinksActive.Set(float64(n)) }

// RecordShareResolution records a share link resolution outcome
// ("ok", "expired", "not_found").
func RecordShareResolution(outcome string) {
	shareResolutionsTotal.WithLabelValues(outcome).Inc()
}

// RecordSandboxRejection records a rejected path resolution.
func RecordSandboxRejection() { sandboxRejectionsTotal.Inc() }

// RecordPoolTask records an offloaded task outcome ("ok", "error", "cancelled").
func RecordPoolTask(outcome string) { poolTasksTotal.WithLabelValues(outcome).Inc() }

// SetPoolQueueDepth sets the pool queue depth gauge.
func SetPoolQueueDepth(n int) { poolQueueDepth.Set(float64(n)) }

// ObserveDrain records how long a worker took to drain.
func ObserveDrain(d time.Duration) { drainDuration.Observe(d.Seconds()) }

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware instruments HTTP requests with count and duration metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		path := routePattern(r)
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// routePattern keeps label cardinality bounded: share tokens and file
// paths must not become label values.
func routePattern(r *http.Request) string {
	if p := r.Pattern; p != "" {
		return p
	}
	return "unmatched"
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
