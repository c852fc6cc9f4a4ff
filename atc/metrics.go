package atc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the Prometheus collectors of the sequencer. A nil *Metrics
// records nothing.
type Metrics struct {
	Transitions *prometheus.CounterVec
	Unmatched   *prometheus.CounterVec
	Faults      *prometheus.CounterVec
	State       *prometheus.GaugeVec
	Poll        prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg, if not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fixedatc_transitions_total",
			Help: "State transitions taken.",
		}, []string{"from", "to", "event"}),
		Unmatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fixedatc_unmatched_events_total",
			Help: "Events ignored because no transition matched the current state.",
		}, []string{"state", "event"}),
		Faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fixedatc_faults_total",
			Help: "Faults that stopped or reset the sequencer.",
		}, []string{"kind"}),
		State: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fixedatc_state",
			Help: "1 for the current state of the sequencer.",
		}, []string{"state"}),
		Poll: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fixedatc_poll_duration_seconds",
			Help:    "Duration of a single controller poll, including issued commands.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Transitions, m.Unmatched, m.Faults, m.State, m.Poll)
	}
	return m
}

func (m *Metrics) transition(from, to State, ev Event) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(string(from), string(to), string(ev)).Inc()
	m.State.WithLabelValues(string(from)).Set(0)
	m.State.WithLabelValues(string(to)).Set(1)
}

func (m *Metrics) unmatched(s State, ev Event) {
	if m == nil {
		return
	}
	m.Unmatched.WithLabelValues(string(s), string(ev)).Inc()
}

func (m *Metrics) fault(kind string) {
	if m == nil {
		return
	}
	m.Faults.WithLabelValues(kind).Inc()
}

func (m *Metrics) poll(d time.Duration) {
	if m == nil {
		return
	}
	m.Poll.Observe(d.Seconds())
}
