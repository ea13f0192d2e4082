// Package monitoring exports supervisor state as Prometheus metrics.
package monitoring

import (
	"context"

	"github.com/core-tools/hsu-procsup-go/pkg/errors"
	"github.com/core-tools/hsu-procsup-go/pkg/logging"
	"github.com/core-tools/hsu-procsup-go/pkg/processmanagement"
	"github.com/core-tools/hsu-procsup-go/pkg/processmanagement/processstatemachine"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "procsup"

// Metrics turns supervisor events into gauges and counters
type Metrics struct {
	state         *prometheus.GaugeVec
	restarts      *prometheus.CounterVec
	crashes       *prometheus.CounterVec
	spawnFailures *prometheus.CounterVec
	logger        logging.Logger
}

// NewMetrics creates the collectors and registers them on registerer
func NewMetrics(registerer prometheus.Registerer, logger logging.Logger) (*Metrics, error) {
	if logger == nil {
		logger = logging.NewNullLogger()
	}

	m := &Metrics{
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "process_state",
			Help:      "Current lifecycle state of each process; 1 for the current state, 0 otherwise.",
		}, []string{"name", "state"}),
		restarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_restarts_total",
			Help:      "Restarts of each process, automatic or requested.",
		}, []string{"name"}),
		crashes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_crashes_total",
			Help:      "Unexpected exits of each process.",
		}, []string{"name"}),
		spawnFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spawn_failures_total",
			Help:      "Failed attempts to launch each process.",
		}, []string{"name"}),
		logger: logger,
	}

	for _, collector := range []prometheus.Collector{m.state, m.restarts, m.crashes, m.spawnFailures} {
		if err := registerer.Register(collector); err != nil {
			return nil, errors.NewInternalError("failed to register metrics collector", err)
		}
	}
	return m, nil
}

// Seed initializes series for processes registered before Run started
func (m *Metrics) Seed(statuses []processmanagement.ProcessStatus) {
	for _, status := range statuses {
		m.track(status.Name)
		m.setState(status.Name, status.State)
	}
}

// Run consumes events until ctx is done or the channel closes
func (m *Metrics) Run(ctx context.Context, events <-chan processmanagement.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				m.logger.Debugf("Metrics event stream closed")
				return
			}
			m.Observe(event)
		}
	}
}

// Observe applies a single event
func (m *Metrics) Observe(event processmanagement.Event) {
	name := event.Process

	switch event.Type {
	case processmanagement.EventRegistered:
		m.track(name)
		m.setState(name, processmanagement.ProcessStateStopped)

	case processmanagement.EventRemoved:
		m.forget(name)

	case processmanagement.EventStateChanged:
		m.setState(name, event.To)

		switch {
		case event.To == processmanagement.ProcessStateCrashed && event.Operation == processmanagement.OperationExit:
			m.crashes.WithLabelValues(name).Inc()
		case event.To == processmanagement.ProcessStateStarting &&
			(event.Operation == processmanagement.OperationAutoRestart || event.Operation == processmanagement.OperationRestart):
			m.restarts.WithLabelValues(name).Inc()
		}

	case processmanagement.EventSpawnFailed:
		m.spawnFailures.WithLabelValues(name).Inc()
	}
}

// track creates zero-valued counters so a process shows up before its first incident
func (m *Metrics) track(name string) {
	m.restarts.WithLabelValues(name)
	m.crashes.WithLabelValues(name)
	m.spawnFailures.WithLabelValues(name)
}

func (m *Metrics) setState(name string, current processstatemachine.ProcessState) {
	for _, state := range processstatemachine.AllStates {
		value := 0.0
		if state == current {
			value = 1
		}
		m.state.WithLabelValues(name, string(state)).Set(value)
	}
}

func (m *Metrics) forget(name string) {
	for _, state := range processstatemachine.AllStates {
		m.state.DeleteLabelValues(name, string(state))
	}
	m.restarts.DeleteLabelValues(name)
	m.crashes.DeleteLabelValues(name)
	m.spawnFailures.DeleteLabelValues(name)
}
