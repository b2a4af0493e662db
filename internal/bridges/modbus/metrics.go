package modbus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "modbus_mapper"

	// Transaction operations.
	opRead  = "read"
	opWrite = "write"

	// Transaction results.
	resultOK    = "ok"
	resultError = "error"

	// Published message kinds.
	publishTwinUpdate = "twin_update"
	publishTwinGet    = "twin_get"
	publishDirect     = "direct"
)

// Use buckets ranging from 10 ms to 30 seconds.
var pollBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30}

// Metrics holds the Prometheus collectors of the synchronisation engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	transactions  *prometheus.CounterVec
	publishes     *prometheus.CounterVec
	propertyValue *prometheus.GaugeVec
	pollDuration  prometheus.Histogram
	clamps        prometheus.Counter
	skippedPolls  prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "transactions_total",
				Help:      "Modbus transactions, labeled by operation (read or write) and result",
			},
			[]string{"operation", "result"},
		),
		publishes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "publishes_total",
				Help:      "Messages published to the twin store, labeled by kind",
			},
			[]string{"kind"},
		),
		propertyValue: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "property_value",
				Help:      "Last numeric value read for a device property",
			},
			[]string{"device", "property"},
		),
		pollDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "poll_cycle_duration_seconds",
				Help:      "Duration of one device poll cycle in seconds",
				Buckets:   pollBuckets,
			},
		),
		clamps: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "clamped_values_total",
				Help:      "Decoded values replaced by a property bound",
			},
		),
		skippedPolls: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "skipped_polls_total",
				Help:      "Poll ticks skipped because the previous cycle of the device was still running",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.transactions, m.publishes, m.propertyValue, m.pollDuration, m.clamps, m.skippedPolls)
	}
	return m
}

func (m *Metrics) observeTransaction(op string, err error) {
	if m == nil {
		return
	}
	result := resultOK
	if err != nil {
		result = resultError
	}
	m.transactions.WithLabelValues(op, result).Inc()
}

func (m *Metrics) observePublish(kind string) {
	if m == nil {
		return
	}
	m.publishes.WithLabelValues(kind).Inc()
}

func (m *Metrics) setPropertyValue(deviceID, property string, v float64) {
	if m == nil {
		return
	}
	m.propertyValue.WithLabelValues(deviceID, property).Set(v)
}

// forgetDevice drops the gauges of a device removed from the profile.
func (m *Metrics) forgetDevice(deviceID string) {
	if m == nil {
		return
	}
	m.propertyValue.DeletePartialMatch(prometheus.Labels{"device": deviceID})
}

func (m *Metrics) observePoll(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.pollDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) observeClamp() {
	if m == nil {
		return
	}
	m.clamps.Inc()
}

func (m *Metrics) observeSkippedPoll() {
	if m == nil {
		return
	}
	m.skippedPolls.Inc()
}
