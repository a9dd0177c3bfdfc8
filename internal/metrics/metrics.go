package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nordagri"

var (
	once sync.Once

	enqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "offline",
			Name:      "enqueued_total",
			Help:      "Operations written to the offline queue by kind.",
		},
		[]string{"kind"},
	)

	replays = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "offline",
			Name:      "replays_total",
			Help:      "Replay attempts by kind and result.",
		},
		[]string{"kind", "result"},
	)

	deadLetters = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "offline",
			Name:      "dead_letters_total",
			Help:      "Operations moved to the dead-letter list by kind.",
		},
		[]string{"kind"},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "offline",
			Name:      "queue_depth",
			Help:      "Operations waiting for replay.",
		},
		[]string{"queue"},
	)

	flushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "offline",
			Name:      "flush_duration_seconds",
			Help:      "Time spent replaying a queue snapshot.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	lastFlush = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "offline",
			Name:      "last_flush_timestamp_seconds",
			Help:      "Unix time of the last finished flush per queue.",
		},
		[]string{"queue"},
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

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(enqueued, replays, deadLetters, queueDepth, flushDuration, lastFlush, httpRequests)
	})
}

func IncEnqueued(kind string) {
	enqueued.WithLabelValues(kind).Inc()
}

func IncReplay(kind, result string) {
	replays.WithLabelValues(kind, result).Inc()
}

func IncDeadLetter(kind string) {
	deadLetters.WithLabelValues(kind).Inc()
}

func SetQueueDepth(queue string, depth int) {
	queueDepth.WithLabelValues(queue).Set(float64(depth))
}

func ObserveFlush(d time.Duration) {
	flushDuration.Observe(d.Seconds())
}

func SetLastFlush(queue string, at time.Time) {
	lastFlush.WithLabelValues(queue).Set(float64(at.Unix()))
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}
