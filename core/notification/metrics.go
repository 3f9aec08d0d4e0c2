package notification

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records dispatch outcomes. A nil *Metrics records nothing.
type Metrics struct {
	dispatched *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schoolfees",
			Subsystem: "notifications",
			Name:      "dispatched_total",
			Help:      "Notification dispatch attempts by channel, type and resulting status.",
		}, []string{"channel", "type", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "schoolfees",
			Subsystem: "notifications",
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent in the outbound message collaborator.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"channel"}),
	}
	if reg != nil {
		reg.MustRegister(m.dispatched, m.duration)
	}
	return m
}

func (m *Metrics) observe(n Notification, started time.Time) {
	if m == nil {
		return
	}
	m.dispatched.WithLabelValues(string(n.Channel), string(n.Type), string(n.Status)).Inc()
	m.duration.WithLabelValues(string(n.Channel)).Observe(time.Since(started).Seconds())
}
