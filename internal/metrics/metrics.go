package metrics

import (
	"errors"
	"time"

	"github.com/eternalApril/moonview/internal/core"
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels of executed commands
const (
	OutcomeOK          = "ok"
	OutcomeBackend     = "backend_error"
	OutcomeTransport   = "transport_error"
	OutcomeInterrupted = "interrupted"
	OutcomeRejected    = "rejected" // dispatch time rejection, no I/O
)

// Metrics holds the command execution collectors.
// A nil *Metrics is valid and records nothing
type Metrics struct {
	commands  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	pipelines *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg
func New(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	m := &Metrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands executed per backend and outcome.",
		}, []string{"backend", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Duration of single command round trips.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"backend"}),
		pipelines: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_size",
			Help:      "Number of commands submitted per pipeline batch.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"backend"}),
	}

	for _, c := range []prometheus.Collector{m.commands, m.latency, m.pipelines} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// ObserveCommand records one executed command
func (m *Metrics) ObserveCommand(backend string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(backend, Outcome(err)).Inc()
	m.latency.WithLabelValues(backend).Observe(d.Seconds())
}

// ObservePipeline records the size of a submitted batch
func (m *Metrics) ObservePipeline(backend string, size int) {
	if m == nil {
		return
	}
	m.pipelines.WithLabelValues(backend).Observe(float64(size))
}

// Outcome classifies err into an outcome label
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, core.ErrInterrupted):
		return OutcomeInterrupted
	case errors.Is(err, core.ErrBackend):
		return OutcomeBackend
	case errors.Is(err, core.ErrUnknownCommand), errors.Is(err, core.ErrArity),
		errors.Is(err, core.ErrParse), errors.Is(err, core.ErrInvalidArgument):
		return OutcomeRejected
	}
	return OutcomeTransport
}
