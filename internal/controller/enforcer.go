package controller

import (
	"time"

	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/internal/qos"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/internal/southbound"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/pkg/config"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/pkg/logger"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/pkg/metrics"
)

// flowInstaller is the southbound surface the enforcer needs
type flowInstaller interface {
	InstallFlow(deviceID string, fm southbound.FlowMod) error
}

// classRulePriority is the priority of class-to-queue rules; it sits above
// the table-miss default so classified traffic never reaches the controller.
const classRulePriority = 10

// appliedPolicy tracks what the enforcer believes is installed on devices
type appliedPolicy struct {
	action    qos.Action
	expiresAt time.Time
}

// Enforcer translates actions into per-port queue rules. Rules carry a hard
// timeout so a dead controller fails open, which means the enforcer must
// renew a still-current policy before its rules lapse. An unchanged policy
// with plenty of lifetime left is a no-op.
type Enforcer struct {
	ctrl    *config.Controller
	classes *config.Classes
	mapping qos.QueueMapping
	sb      flowInstaller
	metrics *metrics.Collectors
	now     func() time.Time

	applied map[string]appliedPolicy
}

// NewEnforcer creates an enforcer over the given southbound installer
func NewEnforcer(ctrl *config.Controller, classes *config.Classes, sb flowInstaller, m *metrics.Collectors) *Enforcer {
	return &Enforcer{
		ctrl:    ctrl,
		classes: classes,
		mapping: qos.NewQueueMapping(classes.Queues),
		sb:      sb,
		metrics: m,
		now:     time.Now,
		applied: make(map[string]appliedPolicy),
	}
}

// Apply enforces an action on every connected device. It returns whether
// the policy changed on any device. Per-device failures are logged and
// counted; the device is retried next cycle because its believed state is
// only advanced on success.
func (e *Enforcer) Apply(devices []string, action qos.Action) bool {
	changed := false
	now := e.now()
	log := logger.GetLogger()

	for _, dev := range devices {
		cur, known := e.applied[dev]
		if known && cur.action == action && !e.needsRenewal(cur, now) {
			continue
		}

		if err := e.install(dev, action); err != nil {
			log.Errorf("Failed to enforce %s on %s: %v", action, dev, err)
			if e.metrics != nil {
				e.metrics.RecordEnforceError()
			}
			// Forget the believed state so the next cycle retries
			delete(e.applied, dev)
			continue
		}

		if !known || cur.action != action {
			changed = true
			log.Infof("Policy %s applied to %s", action, dev)
		} else {
			log.Debugf("Policy %s renewed on %s", action, dev)
		}
		e.applied[dev] = appliedPolicy{
			action:    action,
			expiresAt: now.Add(e.ctrl.RuleTimeout),
		}
	}

	// Drop state for devices that went away
	live := make(map[string]bool, len(devices))
	for _, dev := range devices {
		live[dev] = true
	}
	for dev := range e.applied {
		if !live[dev] {
			delete(e.applied, dev)
		}
	}

	return changed
}

// needsRenewal reports whether the installed rules would expire before the
// next decision cycle could refresh them.
func (e *Enforcer) needsRenewal(cur appliedPolicy, now time.Time) bool {
	return now.Add(e.ctrl.DecisionInterval).After(cur.expiresAt)
}

// install pushes the action's queue rules for every classified port
func (e *Enforcer) install(deviceID string, action qos.Action) error {
	assign := e.mapping[action]

	for _, port := range e.classes.WorkPorts {
		fm := southbound.FlowMod{
			InPort:      port,
			QueueID:     assign.WorkQueue,
			Priority:    classRulePriority,
			HardTimeout: e.ctrl.RuleTimeout,
		}
		if err := e.sb.InstallFlow(deviceID, fm); err != nil {
			return err
		}
	}
	for _, port := range e.classes.EntertainPorts {
		fm := southbound.FlowMod{
			InPort:      port,
			QueueID:     assign.EntertainQueue,
			Priority:    classRulePriority,
			HardTimeout: e.ctrl.RuleTimeout,
		}
		if err := e.sb.InstallFlow(deviceID, fm); err != nil {
			return err
		}
	}
	return nil
}

// Applied returns the believed policy for a device, if any
func (e *Enforcer) Applied(deviceID string) (qos.Action, bool) {
	cur, ok := e.applied[deviceID]
	return cur.action, ok
}
