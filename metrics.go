package reactor

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the counters the loop driver increments as it runs. A
// freshly constructed Metrics (see newMetrics) is never registered against
// any prometheus.Registerer, so a Reactor built without WithMetrics still
// has working, just unexported, counters to increment.
type Metrics struct {
	Ticks               prometheus.Counter
	TimersFired         prometheus.Counter
	ImmediatesDrained   prometheus.Counter
	ReadablesDispatched prometheus.Counter
	WritablesDispatched prometheus.Counter
	ActiveWatchers      *prometheus.GaugeVec
}

func newMetrics() *Metrics {
	return &Metrics{
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reactor",
			Name:      "ticks_total",
			Help:      "Number of loop driver iterations completed.",
		}),
		TimersFired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reactor",
			Name:      "timers_fired_total",
			Help:      "Number of timer watchers fired.",
		}),
		ImmediatesDrained: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reactor",
			Name:      "immediates_drained_total",
			Help:      "Number of immediate callbacks invoked.",
		}),
		ReadablesDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reactor",
			Name:      "readables_dispatched_total",
			Help:      "Number of stream buckets dispatched for readability.",
		}),
		WritablesDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reactor",
			Name:      "writables_dispatched_total",
			Help:      "Number of stream buckets dispatched for writability.",
		}),
		ActiveWatchers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "reactor",
			Name:      "active_watchers",
			Help:      "Number of currently active (non-parked) watchers by kind.",
		}, []string{"kind"}),
	}
}

// NewMetrics builds a Metrics and registers every counter/gauge against reg.
// Pass the result to WithMetrics; panics (via MustRegister) on duplicate
// registration, matching the pack's prometheus wiring convention.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := newMetrics()
	reg.MustRegister(m.Ticks, m.TimersFired, m.ImmediatesDrained, m.ReadablesDispatched, m.WritablesDispatched, m.ActiveWatchers)
	return m
}

func (k watcherKind) metricLabel() string {
	switch k {
	case kindTimer:
		return "timer"
	case kindReadIO:
		return "read_io"
	case kindWriteIO:
		return "write_io"
	case kindImmediate:
		return "immediate"
	default:
		return "unknown"
	}
}
