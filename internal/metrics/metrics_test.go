package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/eternalApril/moonview/internal/core"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcome(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, OutcomeOK},
		{"backend", core.NewBackendError("ERR"), OutcomeBackend},
		{"transport", core.NewTransportError("read", errors.New("reset")), OutcomeTransport},
		{"interrupted", fmt.Errorf("%w: canceled", core.ErrInterrupted), OutcomeInterrupted},
		{"arity", &core.ArityError{Name: "GET", Min: 1, Max: 1}, OutcomeRejected},
		{"unknown", &core.UnknownCommandError{Name: "X"}, OutcomeRejected},
		{"other", errors.New("boom"), OutcomeTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Outcome(tt.err))
		})
	}
}

func TestMetrics_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg, "moonview")
	require.NoError(t, err)

	m.ObserveCommand("redis", time.Millisecond, nil)
	m.ObserveCommand("redis", time.Millisecond, nil)
	m.ObserveCommand("redis", 0, core.NewBackendError("ERR"))
	m.ObservePipeline("redis", 3)

	families, err := reg.Gather()
	require.NoError(t, err)

	byName := make(map[string]*dto.MetricFamily)
	for _, f := range families {
		byName[f.GetName()] = f
	}

	commands := byName["moonview_commands_total"]
	require.NotNil(t, commands)
	counts := make(map[string]float64)
	for _, metric := range commands.GetMetric() {
		for _, l := range metric.GetLabel() {
			if l.GetName() == "outcome" {
				counts[l.GetValue()] = metric.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, 2.0, counts[OutcomeOK])
	assert.Equal(t, 1.0, counts[OutcomeBackend])

	latency := byName["moonview_command_duration_seconds"]
	require.NotNil(t, latency)
	assert.Equal(t, uint64(3), latency.GetMetric()[0].GetHistogram().GetSampleCount())

	pipelines := byName["moonview_pipeline_size"]
	require.NotNil(t, pipelines)
	assert.Equal(t, 3.0, pipelines.GetMetric()[0].GetHistogram().GetSampleSum())
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveCommand("redis", time.Second, nil)
		m.ObservePipeline("redis", 1)
	})
}

func TestNew_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg, "moonview")
	require.NoError(t, err)
	_, err = New(reg, "moonview")
	assert.Error(t, err)
}
