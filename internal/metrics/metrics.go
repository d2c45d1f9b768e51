package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ridesync"

var (
	once sync.Once

	queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Pending items in the write queue.",
	})

	syncStatus = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sync_status",
		Help:      "Write-path status: 0 online, 1 syncing, 2 offline.",
	})

	queueApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_applied_total",
			Help:      "Queue items applied to the remote store.",
		},
		[]string{"kind"},
	)

	queueFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_failures_total",
			Help:      "Failed apply attempts by operation kind and error class.",
		},
		[]string{"kind", "class"},
	)

	queueDeadLettered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_dead_lettered_total",
			Help:      "Queue items moved to the dead-letter list.",
		},
		[]string{"kind"},
	)

	applyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "apply_duration_seconds",
			Help:      "Latency of remote apply attempts.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	cacheRefresh = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_refresh_total",
			Help:      "Cache refresh attempts by result.",
		},
		[]string{"result"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			queueDepth,
			syncStatus,
			queueApplied,
			queueFailures,
			queueDeadLettered,
			applyDuration,
			cacheRefresh,
			httpRequests,
		)
	})
}

func SetQueueDepth(n int) { queueDepth.Set(float64(n)) }

// SetSyncStatus records the numeric form of the status.
func SetSyncStatus(v float64) { syncStatus.Set(v) }

func IncApplied(kind string) { queueApplied.WithLabelValues(kind).Inc() }

func IncFailure(kind, class string) { queueFailures.WithLabelValues(kind, class).Inc() }

func IncDeadLettered(kind string) { queueDeadLettered.WithLabelValues(kind).Inc() }

// ObserveApply records how long one apply attempt took.
func ObserveApply(kind string, seconds float64) {
	applyDuration.WithLabelValues(kind).Observe(seconds)
}

// IncCacheRefresh counts a refresh with result "success", "unreachable" or "error".
func IncCacheRefresh(result string) { cacheRefresh.WithLabelValues(result).Inc() }

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}
