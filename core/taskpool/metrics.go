package taskpool

import "github.com/prometheus/client_golang/prometheus"

var (
	tasksSubmitted *prometheus.CounterVec
	tasksCompleted *prometheus.CounterVec
	tasksDropped   *prometheus.CounterVec
	taskDuration   *prometheus.HistogramVec
)

func newCollectors() (*prometheus.CounterVec, *prometheus.CounterVec, *prometheus.CounterVec, *prometheus.HistogramVec) {
	sub := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskpool_tasks_submitted_total",
			Help: "Number of tasks accepted into the queue",
		},
		[]string{"pool"},
	)
	done := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskpool_tasks_completed_total",
			Help: "Number of tasks executed by outcome",
		},
		[]string{"pool", "outcome"},
	)
	drop := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskpool_tasks_dropped_total",
			Help: "Number of queued tasks dropped by Stop",
		},
		[]string{"pool"},
	)
	dur := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskpool_task_duration_seconds",
			Help:    "Execution time of tasks",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pool"},
	)
	return sub, done, drop, dur
}

func init() {
	tasksSubmitted, tasksCompleted, tasksDropped, taskDuration = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers task pool metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(tasksSubmitted, tasksCompleted, tasksDropped, taskDuration)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	tasksSubmitted, tasksCompleted, tasksDropped, taskDuration = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
