package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "onboarding"

type metrics struct {
	stepsCompleted *prometheus.CounterVec
	activations    prometheus.Counter

	importJobs     *prometheus.CounterVec
	importRows     *prometheus.CounterVec
	importDuration *prometheus.HistogramVec
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		stepsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wizard",
			Name:      "steps_completed_total",
			Help:      "Total number of completed wizard steps.",
		}, []string{"step"}),
		activations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wizard",
			Name:      "activations_total",
			Help:      "Total number of activated tenants.",
		}),
		importJobs: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "jobs_total",
			Help:      "Total number of import jobs that reached a terminal status.",
		}, []string{"target", "status"}),
		importRows: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "rows_total",
			Help:      "Total number of processed import rows.",
		}, []string{"target", "outcome"}),
		importDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "duration_seconds",
			Help:      "Duration of import job execution.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"target"}),
	}
})

func get() *metrics {
	return metricsSingleton()
}

// StepCompleted учитывает завершение шага мастера
func StepCompleted(step int) {
	get().stepsCompleted.WithLabelValues(strconv.Itoa(step)).Inc()
}

// Activated учитывает активацию арендатора
func Activated() {
	get().activations.Inc()
}

// ImportFinished учитывает итог задания импорта
func ImportFinished(target, status string, accepted, rejected int, elapsed time.Duration) {
	m := get()
	m.importJobs.WithLabelValues(target, status).Inc()
	m.importRows.WithLabelValues(target, "accepted").Add(float64(accepted))
	m.importRows.WithLabelValues(target, "rejected").Add(float64(rejected))
	m.importDuration.WithLabelValues(target).Observe(elapsed.Seconds())
}

// Handler отдаёт метрики в формате Prometheus
func Handler() http.Handler {
	get()
	return promhttp.Handler()
}
