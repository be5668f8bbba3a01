package controller

import (
	"context"
	"time"

	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/internal/ddqn"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/internal/env"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/internal/estimator"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/internal/export"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/internal/registry"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/pkg/config"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/pkg/logger"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/pkg/metrics"
)

// DecisionLoop runs the control cadence: estimate the network state, ask
// the trained policy for an action greedily, enforce it, and record the
// outcome. Exploration stays off in production; the policy only acts on
// what it learned offline.
type DecisionLoop struct {
	cfg      *config.Controller
	reward   *config.Reward
	registry *registry.Registry
	agent    *ddqn.Agent
	est      *estimator.Estimator
	enforcer *Enforcer
	metrics  *metrics.Collectors
	trace    *export.Writer
}

// NewDecisionLoop wires the decision cadence. The trace writer may be nil
// when export is disabled.
func NewDecisionLoop(
	cfg *config.Controller,
	reward *config.Reward,
	reg *registry.Registry,
	agent *ddqn.Agent,
	est *estimator.Estimator,
	enforcer *Enforcer,
	m *metrics.Collectors,
	trace *export.Writer,
) *DecisionLoop {
	return &DecisionLoop{
		cfg:      cfg,
		reward:   reward,
		registry: reg,
		agent:    agent,
		est:      est,
		enforcer: enforcer,
		metrics:  m,
		trace:    trace,
	}
}

// Run decides until the context is cancelled
func (d *DecisionLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.DecisionInterval)
	defer ticker.Stop()

	log := logger.GetLogger()
	log.Infof("Decision loop started, deciding every %v", d.cfg.DecisionInterval)

	for {
		select {
		case <-ctx.Done():
			log.Info("Decision loop stopped")
			return
		case <-ticker.C:
			d.decide()
		}
	}
}

func (d *DecisionLoop) decide() {
	devices := d.registry.DeviceIDs()
	if len(devices) == 0 {
		return
	}

	started := time.Now()
	state, obs := d.est.Estimate(d.registry.PortMetrics())

	action := d.agent.SelectAction(state.Slice(), 0)
	changed := d.enforcer.Apply(devices, action)
	elapsed := time.Since(started)

	reward := env.Score(d.reward, obs.Hour, action, env.Outcome{
		WorkBw:      obs.WorkBandwidthMbps,
		EntBw:       obs.EntertainBandwidthMbps,
		WorkLat:     obs.WorkLatencyMs,
		EntLat:      obs.EntertainLatencyMs,
		WorkLoss:    obs.WorkLossRatio,
		EntLoss:     obs.EntertainLossRatio,
		Utilization: obs.TotalUtilization,
	})

	log := logger.GetLogger()
	log.WithFields(map[string]interface{}{
		"action":      action.String(),
		"changed":     changed,
		"work_mbps":   obs.WorkBandwidthMbps,
		"ent_mbps":    obs.EntertainBandwidthMbps,
		"work_loss":   obs.WorkLossRatio,
		"ent_loss":    obs.EntertainLossRatio,
		"utilization": obs.TotalUtilization,
		"reward":      reward,
	}).Debug("Decision cycle")

	if d.metrics != nil {
		d.metrics.RecordDecision(action.String(), changed, elapsed)
		d.metrics.SetClassObservation("work", obs.WorkBandwidthMbps, obs.WorkLossRatio)
		d.metrics.SetClassObservation("entertainment", obs.EntertainBandwidthMbps, obs.EntertainLossRatio)
	}

	if d.trace != nil {
		if err := d.trace.Record(started, obs, action, reward); err != nil {
			log.Warnf("Trace export failed: %v", err)
		}
	}
}
