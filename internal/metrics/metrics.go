// Package metrics exposes bridge counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaunagostinho/portbridge/internal/bridge"
)

// NewRegistry creates a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the registry in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Bridge holds the session counters. It implements bridge.Observer.
type Bridge struct {
	Frames            *prometheus.CounterVec // labels: kind, result
	Actions           *prometheus.CounterVec // labels: action
	Responses         *prometheus.CounterVec // labels: type=ok|error
	SerialBytes       prometheus.Counter
	SerialWriteErrors prometheus.Counter
	PowerOn           prometheus.Counter
}

// NewBridge registers and returns the bridge counters.
func NewBridge(reg prometheus.Registerer) *Bridge {
	m := &Bridge{
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portbridge_frames_total",
			Help: "Frames handled, by event kind and result.",
		}, []string{"kind", "result"}),
		Actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portbridge_actions_total",
			Help: "Dispatcher actions taken.",
		}, []string{"action"}),
		Responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portbridge_responses_total",
			Help: "Responses written to the host.",
		}, []string{"type"}),
		SerialBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portbridge_serial_bytes_written_total",
			Help: "Bytes accepted by the serial link.",
		}),
		SerialWriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portbridge_serial_write_errors_total",
			Help: "Failed serial writes.",
		}),
		PowerOn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portbridge_power_on_total",
			Help: "Power-on pulses requested.",
		}),
	}
	reg.MustRegister(m.Frames, m.Actions, m.Responses, m.SerialBytes, m.SerialWriteErrors, m.PowerOn)
	return m
}

// Observe implements bridge.Observer.
func (m *Bridge) Observe(ev bridge.Event) {
	m.Frames.WithLabelValues(ev.Kind, ev.Result).Inc()
	if ev.Action != "" {
		m.Actions.WithLabelValues(ev.Action).Inc()
	}
	switch ev.ResponseType {
	case 1:
		m.Responses.WithLabelValues("ok").Inc()
	case 2:
		m.Responses.WithLabelValues("error").Inc()
	}
	if ev.Written > 0 {
		m.SerialBytes.Add(float64(ev.Written))
	}
	switch ev.Action {
	case bridge.ActionWrite.String():
		if ev.Result == bridge.ResultError {
			m.SerialWriteErrors.Inc()
		}
	case bridge.ActionPowerOn.String():
		m.PowerOn.Inc()
	}
}
