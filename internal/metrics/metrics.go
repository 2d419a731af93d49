// Package metrics provides Prometheus instrumentation for the Kestrel SDK.
//
// Collectors are registered in the registerer supplied by the host
// application, or in a fresh private [prometheus.Registry] when none is
// given, so SDK metrics never collide with the host's default registry.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors used by the SDK client.
type Metrics struct {
	Registry prometheus.Registerer

	EvaluationsTotal       *prometheus.CounterVec
	VariantSelectionsTotal *prometheus.CounterVec
	DefinitionLoadsTotal   prometheus.Counter
	DefinitionLoadFailures prometheus.Counter
	DefinitionAgeSeconds   prometheus.Gauge
	FlushesTotal           *prometheus.CounterVec
	EventsEnqueuedTotal    prometheus.Counter
	EventsDroppedTotal     prometheus.Counter
	EventsSuppressedTotal  prometheus.Counter
}

// New creates and registers all SDK metrics. A nil reg uses a fresh private
// registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		Registry: reg,

		EvaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kestrel_evaluations_total",
			Help: "Total number of flag evaluations.",
		}, []string{"flag", "result"}),

		VariantSelectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kestrel_variant_selections_total",
			Help: "Total number of remote-config variant selections.",
		}, []string{"reason"}),

		DefinitionLoadsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kestrel_definition_loads_total",
			Help: "Total number of successful definition refreshes.",
		}),

		DefinitionLoadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kestrel_definition_load_failures_total",
			Help: "Total number of failed definition refreshes.",
		}),

		DefinitionAgeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kestrel_definition_age_seconds",
			Help: "Age of the current definition snapshot at last read.",
		}),

		FlushesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kestrel_event_flushes_total",
			Help: "Total number of telemetry flush attempts.",
		}, []string{"outcome"}),

		EventsEnqueuedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kestrel_events_enqueued_total",
			Help: "Total number of telemetry events added to the buffer.",
		}),

		EventsDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kestrel_events_dropped_total",
			Help: "Total number of telemetry events dropped after exhausting retries.",
		}),

		EventsSuppressedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kestrel_events_suppressed_total",
			Help: "Total number of telemetry events suppressed by the dedup rate limit.",
		}),
	}

	reg.MustRegister(
		m.EvaluationsTotal,
		m.VariantSelectionsTotal,
		m.DefinitionLoadsTotal,
		m.DefinitionLoadFailures,
		m.DefinitionAgeSeconds,
		m.FlushesTotal,
		m.EventsEnqueuedTotal,
		m.EventsDroppedTotal,
		m.EventsSuppressedTotal,
	)

	return m
}

// All recorder methods tolerate a nil receiver so callers can leave metrics
// disabled without guarding every call site.

// RecordEvaluation counts one flag evaluation.
func (m *Metrics) RecordEvaluation(flag string, result bool) {
	if m == nil {
		return
	}
	m.EvaluationsTotal.WithLabelValues(flag, strconv.FormatBool(result)).Inc()
}

// RecordVariantSelection counts one variant selection by reason code.
func (m *Metrics) RecordVariantSelection(reason string) {
	if m == nil {
		return
	}
	m.VariantSelectionsTotal.WithLabelValues(reason).Inc()
}

// RecordDefinitionLoad counts one refresh attempt.
func (m *Metrics) RecordDefinitionLoad(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.DefinitionLoadsTotal.Inc()
	} else {
		m.DefinitionLoadFailures.Inc()
	}
}

// SetDefinitionAge records the snapshot age observed at read time.
func (m *Metrics) SetDefinitionAge(age time.Duration) {
	if m == nil {
		return
	}
	m.DefinitionAgeSeconds.Set(age.Seconds())
}

// RecordFlush counts one flush attempt by outcome.
func (m *Metrics) RecordFlush(ok bool) {
	if m == nil {
		return
	}
	outcome := "failure"
	if ok {
		outcome = "success"
	}
	m.FlushesTotal.WithLabelValues(outcome).Inc()
}

// RecordEnqueued counts one buffered telemetry event.
func (m *Metrics) RecordEnqueued() {
	if m == nil {
		return
	}
	m.EventsEnqueuedTotal.Inc()
}

// RecordDropped counts n events dropped after retry exhaustion.
func (m *Metrics) RecordDropped(n int) {
	if m == nil {
		return
	}
	m.EventsDroppedTotal.Add(float64(n))
}

// RecordSuppressed counts one event suppressed by the dedup rate limit.
func (m *Metrics) RecordSuppressed() {
	if m == nil {
		return
	}
	m.EventsSuppressedTotal.Inc()
}
