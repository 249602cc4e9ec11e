// Package metrics holds the Prometheus collectors of the sizing tools.
// They live on a private registry that is exported as a textfile snapshot or
// served over HTTP.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "invsizer"

var (
	// Registry holds every collector of this package.
	Registry = prometheus.NewRegistry()

	// Evaluations counts objective evaluations by driver (metaheuristic, grid).
	Evaluations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "evaluations_total",
		Help:      "Objective evaluations by search driver.",
	}, []string{"driver"})

	// Penalties counts infeasible sizings scored with the penalty value.
	Penalties = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "penalties_total",
		Help:      "Infeasible sizings scored with the penalty value.",
	})

	// SimulatorFailures counts failed simulator invocations by reason.
	SimulatorFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "simulator_failures_total",
		Help:      "Failed simulator invocations by reason.",
	}, []string{"reason"})

	// SimulatorSeconds observes the wall time of simulator invocations.
	SimulatorSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "simulator_duration_seconds",
		Help:      "Wall time of one simulator invocation.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	// BestObjective is the best objective value of the latest finished search.
	BestObjective = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "best_objective",
		Help:      "Best objective value of the latest finished search by driver.",
	}, []string{"driver"})

	// Jobs counts server jobs by final state.
	Jobs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_total",
		Help:      "Server jobs by final state.",
	}, []string{"state"})

	// JobsRunning is the number of server jobs currently running.
	JobsRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "jobs_running",
		Help:      "Server jobs currently running.",
	})
)

func init() {
	Registry.MustRegister(Evaluations, Penalties, SimulatorFailures, SimulatorSeconds, BestObjective, Jobs, JobsRunning)
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// WriteFile writes a snapshot of all collectors in the Prometheus text
// format, suitable for the node_exporter textfile collector.
func WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}
