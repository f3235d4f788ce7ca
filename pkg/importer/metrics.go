package importer

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus collectors for import runs.
type Metrics struct {
	importsTotal     *prometheus.CounterVec
	actionsTotal     *prometheus.CounterVec
	taskWaitDuration prometheus.Histogram
}

// NewMetrics creates the importer metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		importsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "asm_imports_total",
				Help: "Total number of import runs by outcome",
			},
			[]string{"outcome"},
		),
		actionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "asm_import_actions_total",
				Help: "Resolved actions of successful import runs",
			},
			[]string{"action"},
		),
		taskWaitDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name: "asm_import_task_wait_seconds",
				Help: "Time spent waiting for device-side import tasks",
				// Device imports of large XML policies can take minutes.
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
			},
		),
	}

	if reg != nil {
		reg.MustRegister(m.importsTotal, m.actionsTotal, m.taskWaitDuration)
	}
	return m
}
