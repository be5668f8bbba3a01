package controller

import (
	"context"
	"sync"

	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/internal/ddqn"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/internal/estimator"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/internal/export"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/internal/registry"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/internal/southbound"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/pkg/config"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/pkg/logger"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/pkg/metrics"
)

// Controller composes the live control plane: the southbound listener,
// the polling monitor and the decision loop, sharing one device registry.
type Controller struct {
	cfg      *config.Config
	registry *registry.Registry
	sb       *southbound.Server
	monitor  *Monitor
	decision *DecisionLoop
	trace    *export.Writer

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New assembles the control plane around a loaded agent
func New(cfg *config.Config, agent *ddqn.Agent, m *metrics.Collectors) (*Controller, error) {
	reg := registry.New()
	sb := southbound.NewServer(&cfg.Southbound, reg)
	est := estimator.New(&cfg.Controller, &cfg.Classes)
	enforcer := NewEnforcer(&cfg.Controller, &cfg.Classes, sb, m)

	var trace *export.Writer
	if cfg.Export.Enabled {
		w, err := export.NewWriter(cfg.Export.Path)
		if err != nil {
			return nil, err
		}
		trace = w
	}

	return &Controller{
		cfg:      cfg,
		registry: reg,
		sb:       sb,
		monitor:  NewMonitor(&cfg.Controller, reg, sb, m),
		decision: NewDecisionLoop(&cfg.Controller, &cfg.Reward, reg, agent, est, enforcer, m, trace),
		trace:    trace,
	}, nil
}

// Registry exposes the device registry, mainly for health reporting
func (c *Controller) Registry() *registry.Registry {
	return c.registry
}

// Start brings up the southbound listener and both loops
func (c *Controller) Start(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	if err := c.sb.Start(loopCtx); err != nil {
		cancel()
		return err
	}

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.monitor.Run(loopCtx)
	}()
	go func() {
		defer c.wg.Done()
		c.decision.Run(loopCtx)
	}()

	logger.GetLogger().Info("Controller started")
	return nil
}

// Stop shuts the loops and the southbound listener down and waits for
// them within the given context's deadline.
func (c *Controller) Stop(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := c.sb.Stop(ctx); err != nil {
		return err
	}
	if c.trace != nil {
		if err := c.trace.Close(); err != nil {
			logger.GetLogger().Warnf("Failed to close trace file: %v", err)
		}
	}

	logger.GetLogger().Info("Controller stopped")
	return nil
}
