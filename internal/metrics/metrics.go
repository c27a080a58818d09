package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "publisher"

var (
	// Destinations
	destinationCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "destination_calls_total",
			Help:      "Total number of adapter calls by destination, operation and outcome.",
		},
		[]string{"destination", "operation", "outcome"},
	)
	destinationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "destination_call_duration_seconds",
			Help:      "Adapter call duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"destination", "operation"},
	)

	// Statuses
	statusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "Total number of publishing statuses reaching a given overall status.",
		},
		[]string{"status"},
	)

	// Queue
	queueTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_job_transitions_total",
			Help:      "Total number of queue job transitions (completed, retried, failed, dropped).",
		},
		[]string{"transition"},
	)
	queueJobs = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_jobs",
			Help:      "Current count of queue jobs by status.",
		},
		[]string{"status"},
	)
	queueTickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "queue_tick_duration_seconds",
			Help:      "Time spent processing one batch of due jobs (seconds).",
			Buckets:   prometheus.DefBuckets,
		},
	)
	queueTicksSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_ticks_skipped_total",
			Help:      "Total number of ticks skipped because the previous tick was still running.",
		},
	)
	queuePurged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_jobs_purged_total",
			Help:      "Total number of completed jobs removed by the retention sweep.",
		},
	)
)

var registerOnce sync.Once

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			destinationCalls,
			destinationDuration,

			statusTransitions,

			queueTransitions,
			queueJobs,
			queueTickDuration,
			queueTicksSkipped,
			queuePurged,
		)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// --- Destinations ---
func ObserveDestinationCall(destination, operation, outcome string, d time.Duration) {
	destinationCalls.WithLabelValues(destination, operation, outcome).Inc()
	destinationDuration.WithLabelValues(destination, operation).Observe(d.Seconds())
}

// --- Statuses ---
func IncStatus(status string) { statusTransitions.WithLabelValues(status).Inc() }

// --- Queue ---
func IncQueueTransition(transition string)  { queueTransitions.WithLabelValues(transition).Inc() }
func ObserveQueueTick(d time.Duration)      { queueTickDuration.Observe(d.Seconds()) }
func IncQueueTickSkipped()                  { queueTicksSkipped.Inc() }
func AddQueuePurged(n int)                  { queuePurged.Add(float64(max0(n))) }
func SetQueueJobs(status string, count int) { queueJobs.WithLabelValues(status).Set(float64(max0(count))) }

func max0(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
