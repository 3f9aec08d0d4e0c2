package duedate

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records scan runs. A nil *Metrics records nothing.
type Metrics struct {
	runs        *prometheus.CounterVec
	duration    prometheus.Histogram
	reminders   *prometheus.CounterVec
	lateFees    prometheus.Counter
	lastSuccess prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schoolfees",
			Subsystem: "duedate_scan",
			Name:      "runs_total",
			Help:      "Due-date scans by result (completed, skipped, failed).",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "schoolfees",
			Subsystem: "duedate_scan",
			Name:      "duration_seconds",
			Help:      "Duration of completed due-date scans.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		reminders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schoolfees",
			Subsystem: "duedate_scan",
			Name:      "reminders_total",
			Help:      "Installment reminders by type and outcome.",
		}, []string{"type", "outcome"}),
		lateFees: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "schoolfees",
			Subsystem: "duedate_scan",
			Name:      "late_fee_amount_total",
			Help:      "Sum of late fees added to overdue installments.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "schoolfees",
			Subsystem: "duedate_scan",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last completed scan.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.runs, m.duration, m.reminders, m.lateFees, m.lastSuccess)
	}
	return m
}

func (m *Metrics) observeRun(result string, started time.Time) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(result).Inc()
	if result == "completed" {
		m.duration.Observe(time.Since(started).Seconds())
		m.lastSuccess.SetToCurrentTime()
	}
}

func (m *Metrics) observeReminder(typ, outcome string) {
	if m == nil {
		return
	}
	m.reminders.WithLabelValues(typ, outcome).Inc()
}

func (m *Metrics) observeLateFee(amount int64) {
	if m == nil || amount <= 0 {
		return
	}
	m.lateFees.Add(float64(amount))
}
