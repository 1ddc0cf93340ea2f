package mlr

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the MLR tracker. A nil *Metrics records
// nothing.
type Metrics struct {
	// Messages put under delivery tracking
	Tracked prometheus.Counter

	// Transitions into a terminal state by status
	Transitions *prometheus.CounterVec

	// Incoming signals by type and processing status
	Signals *prometheus.CounterVec

	// Time from tracking start to the settling signal
	DeliveryTime prometheus.Histogram
}

// NewMetrics creates the tracker metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Tracked: f.NewCounter(prometheus.CounterOpts{
			Name: "peppol_mlr_tracked_messages_total",
			Help: "Total messages put under delivery tracking",
		}),

		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "peppol_mlr_transitions_total",
			Help: "Total delivery state transitions by resulting status",
		}, []string{"status"}), // status: "delivered", "failed", "timeout"

		Signals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "peppol_mlr_signals_total",
			Help: "Total incoming MLR signals by type and processing status",
		}, []string{"signal_type", "status"}),

		DeliveryTime: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "peppol_mlr_delivery_duration_seconds",
			Help:    "Time between sending a message and receiving its receipt or error",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900, 1800},
		}),
	}
}

// IncrementTracked records a message put under tracking.
func (m *Metrics) IncrementTracked() {
	if m != nil {
		m.Tracked.Inc()
	}
}

// IncrementTransition records a transition into status.
func (m *Metrics) IncrementTransition(status Status) {
	if m != nil {
		m.Transitions.WithLabelValues(string(status)).Inc()
	}
}

// IncrementSignal records a processed incoming signal.
func (m *Metrics) IncrementSignal(signalType SignalType, status ProcessingStatus) {
	if m != nil {
		m.Signals.WithLabelValues(string(signalType), string(status)).Inc()
	}
}

// ObserveDeliveryTime records the delivery time of a settled message.
func (m *Metrics) ObserveDeliveryTime(d time.Duration) {
	if m != nil {
		m.DeliveryTime.Observe(d.Seconds())
	}
}
