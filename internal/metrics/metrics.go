package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "clipcast"

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "http", Name: "requests_total",
		Help: "API requests served, by method, normalized path and status code.",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
		Help:    "API request latency.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
	}, []string{"method", "path"})

	httpRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "http", Name: "requests_in_flight",
		Help: "API requests currently being handled.",
	})

	dbConnectionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "db", Name: "connections_open",
		Help: "SQLite pool connections, idle or in use.",
	})

	dbConnectionsInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "db", Name: "connections_in_use",
		Help: "SQLite pool connections checked out.",
	})

	scheduleFires = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "schedule_fires_total",
		Help: "Trigger fires by result (dispatched or skipped).",
	}, []string{"result"})

	cycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "cycles_total",
		Help: "Completed publish cycles by result.",
	}, []string{"result"})

	postsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "posts_total",
		Help: "Posts reaching a terminal status.",
	}, []string{"platform", "status"})

	publishDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: "publish_duration_seconds",
		Help:    "Time spent publishing to a single account.",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"platform"})

	activeTriggers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "active_triggers",
		Help: "Schedule triggers currently registered.",
	})
)

// Fire results.
const (
	FireDispatched = "dispatched"
	FireSkipped    = "skipped"
)

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func IncrementInFlight() {
	httpRequestsInFlight.Inc()
}

func DecrementInFlight() {
	httpRequestsInFlight.Dec()
}

func UpdateDBStats(open, inUse int) {
	dbConnectionsOpen.Set(float64(open))
	dbConnectionsInUse.Set(float64(inUse))
}

func RecordFire(result string) {
	scheduleFires.WithLabelValues(result).Inc()
}

func RecordCycle(result string) {
	cycles.WithLabelValues(result).Inc()
}

func RecordPost(platform, status string) {
	postsTotal.WithLabelValues(platform, status).Inc()
}

func RecordPublish(platform string, duration time.Duration) {
	publishDuration.WithLabelValues(platform).Observe(duration.Seconds())
}

func SetActiveTriggers(n int) {
	activeTriggers.Set(float64(n))
}

// NormalizePath replaces the segment after a collection name with :id so
// label cardinality stays bounded. Long paths are cut at 100 bytes.
func NormalizePath(path string) string {
	if len(path) > 100 {
		path = path[:100]
	}

	segs := strings.Split(path, "/")
	for i := 1; i < len(segs); i++ {
		if segs[i] != "" && collections[segs[i-1]] {
			segs[i] = ":id"
		}
	}
	return strings.Join(segs, "/")
}

var collections = map[string]bool{"schedules": true, "accounts": true, "posts": true, "media": true}
