// Package metrics exposes the compensation counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/polteknik/kompen/internal/service"
)

// Recorder implements service.Recorder on a private registry.
type Recorder struct {
	registry    *prometheus.Registry
	transitions *prometheus.CounterVec
	relieved    prometheus.Counter
}

var _ service.Recorder = (*Recorder)(nil)

// New registers the counters, plus the Go and process collectors, on a
// fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kompen",
			Name:      "transitions_total",
			Help:      "Committed status transitions by entity and target status.",
		}, []string{"entity", "status"}),
		relieved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kompen",
			Name:      "hours_relieved_total",
			Help:      "Compensation hours deducted by completed jobs and approved payments.",
		}),
	}
	r.registry.MustRegister(
		r.transitions,
		r.relieved,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) Transition(entity, status string) {
	r.transitions.WithLabelValues(entity, status).Inc()
}

func (r *Recorder) HoursRelieved(hours int) {
	if hours > 0 {
		r.relieved.Add(float64(hours))
	}
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
