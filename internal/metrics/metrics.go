// Package metrics exposes Prometheus counters for the sync engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatsync"

// Action outcomes.
const (
	OutcomeCommitted   = "committed"
	OutcomeRolledBack  = "rolled_back"
	OutcomeCompensated = "compensated"
	OutcomeRejected    = "rejected"
)

// Metrics holds the engine's collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	events     *prometheus.CounterVec
	actions    *prometheus.CounterVec
	gaps       prometheus.Counter
	reconnects prometheus.Counter
	snapshots  *prometheus.CounterVec

	reg prometheus.Registerer
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_routed_total",
			Help:      "Push events routed, by tag.",
		}, []string{"tag"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Optimistic actions finished, by action and outcome.",
		}, []string{"action", "outcome"}),
		gaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_gap_dropped_total",
			Help:      "Incoming messages dropped from an open window because they were not contiguous.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_reconnects_total",
			Help:      "Push stream resubscriptions after a failure.",
		}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Snapshot operations, by operation and result.",
		}, []string{"op", "result"}),
		reg: reg,
	}
	if reg != nil {
		reg.MustRegister(m.events, m.actions, m.gaps, m.reconnects, m.snapshots)
	}
	return m
}

// EventRouted counts one push event with the given tag.
func (m *Metrics) EventRouted(tag string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(tag).Inc()
}

// ActionFinished counts one optimistic action outcome.
func (m *Metrics) ActionFinished(action, outcome string) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) GapDropped() {
	if m == nil {
		return
	}
	m.gaps.Inc()
}

func (m *Metrics) Reconnected() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

// Snapshot counts a snapshot save/load/delete. err decides the result label.
func (m *Metrics) Snapshot(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.snapshots.WithLabelValues(op, result).Inc()
}

// BusDrops exports count as the number of bus deliveries skipped for slow
// subscribers.
func (m *Metrics) BusDrops(count func() uint64) {
	if m == nil || m.reg == nil {
		return
	}
	m.reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bus_dropped_total",
		Help:      "Bus events not delivered because a subscriber buffer was full.",
	}, func() float64 { return float64(count()) }))
}

// Handler serves the collectors gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
