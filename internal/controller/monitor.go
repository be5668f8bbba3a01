package controller

import (
	"context"
	"time"

	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/internal/registry"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/pkg/config"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/pkg/logger"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/pkg/metrics"
)

// statsRequester is the southbound surface the monitor needs
type statsRequester interface {
	RequestStats(deviceID string) error
}

// Monitor drives the stats polling cadence. Each tick it asks every
// connected device for a counter snapshot; replies flow into the registry
// asynchronously on the device sessions.
type Monitor struct {
	cfg      *config.Controller
	registry *registry.Registry
	sb       statsRequester
	metrics  *metrics.Collectors
}

// NewMonitor creates the polling loop
func NewMonitor(cfg *config.Controller, reg *registry.Registry, sb statsRequester, m *metrics.Collectors) *Monitor {
	return &Monitor{cfg: cfg, registry: reg, sb: sb, metrics: m}
}

// Run polls until the context is cancelled
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	log := logger.GetLogger()
	log.Infof("Monitor started, polling every %v", m.cfg.PollInterval)

	for {
		select {
		case <-ctx.Done():
			log.Info("Monitor stopped")
			return
		case <-ticker.C:
			m.poll()
		}
	}
}

func (m *Monitor) poll() {
	devices := m.registry.DeviceIDs()
	if m.metrics != nil {
		m.metrics.SetConnectedDevices(len(devices))
	}
	for _, dev := range devices {
		if err := m.sb.RequestStats(dev); err != nil {
			logger.GetLogger().Warnf("Stats request to %s failed: %v", dev, err)
			if m.metrics != nil {
				m.metrics.RecordPollError()
			}
		}
	}
}
