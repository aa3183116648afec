package driver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors updated by a Driver. A nil
// *Metrics records nothing.
type Metrics struct {
	ActiveLoops   prometheus.Gauge
	Ticks         prometheus.Counter
	Completions   prometheus.Counter
	Cancellations prometheus.Counter
	Progress      prometheus.Gauge
}

// NewMetrics creates the driver collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ActiveLoops: f.NewGauge(prometheus.GaugeOpts{
			Name: "timerkit_driver_active_loops",
			Help: "Number of polling loops currently running",
		}),
		Ticks: f.NewCounter(prometheus.CounterOpts{
			Name: "timerkit_driver_ticks_total",
			Help: "Number of progress samples emitted",
		}),
		Completions: f.NewCounter(prometheus.CounterOpts{
			Name: "timerkit_driver_completions_total",
			Help: "Number of sessions completed by a polling loop",
		}),
		Cancellations: f.NewCounter(prometheus.CounterOpts{
			Name: "timerkit_driver_cancellations_total",
			Help: "Number of polling loops ended by cancellation",
		}),
		Progress: f.NewGauge(prometheus.GaugeOpts{
			Name: "timerkit_driver_last_progress",
			Help: "Remaining fraction reported by the most recent sample",
		}),
	}
}

func (m *Metrics) loopStarted() {
	if m != nil {
		m.ActiveLoops.Inc()
	}
}

func (m *Metrics) loopStopped() {
	if m != nil {
		m.ActiveLoops.Dec()
	}
}

func (m *Metrics) ticked(progress float64) {
	if m != nil {
		m.Ticks.Inc()
		m.Progress.Set(progress)
	}
}

func (m *Metrics) completed() {
	if m != nil {
		m.Completions.Inc()
		m.Progress.Set(0)
	}
}

func (m *Metrics) cancelled() {
	if m != nil {
		m.Cancellations.Inc()
	}
}
