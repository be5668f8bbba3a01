package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors exposes the controller's Prometheus metrics
type Collectors struct {
	decisions        *prometheus.CounterVec
	policyChanges    prometheus.Counter
	enforceErrors    prometheus.Counter
	pollErrors       prometheus.Counter
	connectedDevices prometheus.Gauge
	classBandwidth   *prometheus.GaugeVec
	classLoss        *prometheus.GaugeVec
	decisionDuration prometheus.Histogram

	startTime time.Time
	mu        sync.RWMutex

	totalDecisions int64
	totalChanges   int64
	lastAction     string
}

// NewCollectors registers and returns the controller metric collectors
func NewCollectors() *Collectors {
	return &Collectors{
		decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "qos_decisions_total",
			Help: "Total decision cycles by selected action",
		}, []string{"action"}),
		policyChanges: promauto.NewCounter(prometheus.CounterOpts{
			Name: "qos_policy_changes_total",
			Help: "Total policy changes applied to devices",
		}),
		enforceErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "qos_enforcement_errors_total",
			Help: "Total failed rule installations",
		}),
		pollErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "qos_poll_errors_total",
			Help: "Total failed counter queries",
		}),
		connectedDevices: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "qos_connected_devices",
			Help: "Number of connected network devices",
		}),
		classBandwidth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "qos_class_bandwidth_mbps",
			Help: "Measured per-class bandwidth in Mbps",
		}, []string{"class"}),
		classLoss: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "qos_class_loss_ratio",
			Help: "Measured per-class packet loss ratio",
		}, []string{"class"}),
		decisionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "qos_decision_duration_seconds",
			Help:    "Duration of one decision cycle",
			Buckets: prometheus.DefBuckets,
		}),
		startTime: time.Now(),
	}
}

// RecordDecision records one decision cycle outcome
func (c *Collectors) RecordDecision(action string, changed bool, duration time.Duration) {
	c.decisions.WithLabelValues(action).Inc()
	c.decisionDuration.Observe(duration.Seconds())
	if changed {
		c.policyChanges.Inc()
	}

	c.mu.Lock()
	c.totalDecisions++
	if changed {
		c.totalChanges++
	}
	c.lastAction = action
	c.mu.Unlock()
}

// RecordEnforceError counts a failed rule installation
func (c *Collectors) RecordEnforceError() {
	c.enforceErrors.Inc()
}

// RecordPollError counts a failed counter query
func (c *Collectors) RecordPollError() {
	c.pollErrors.Inc()
}

// SetConnectedDevices updates the connected device gauge
func (c *Collectors) SetConnectedDevices(n int) {
	c.connectedDevices.Set(float64(n))
}

// SetClassObservation updates the per-class bandwidth and loss gauges
func (c *Collectors) SetClassObservation(class string, bandwidthMbps, lossRatio float64) {
	c.classBandwidth.WithLabelValues(class).Set(bandwidthMbps)
	c.classLoss.WithLabelValues(class).Set(lossRatio)
}

// GetStats returns a snapshot for the health endpoint
func (c *Collectors) GetStats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return map[string]interface{}{
		"total_decisions": c.totalDecisions,
		"policy_changes":  c.totalChanges,
		"last_action":     c.lastAction,
		"uptime":          time.Since(c.startTime).String(),
	}
}
