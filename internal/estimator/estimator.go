package estimator

import (
	"time"

	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/internal/qos"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/internal/registry"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/pkg/config"
)

// ClassObservation carries the raw per-class measurements behind one
// state vector, kept in engineering units for logging and export.
type ClassObservation struct {
	WorkBandwidthMbps      float64
	EntertainBandwidthMbps float64
	WorkLatencyMs          float64
	EntertainLatencyMs     float64
	WorkLossRatio          float64
	EntertainLossRatio     float64
	TotalUtilization       float64
	Hour                   int
}

// Estimator aggregates per-port metrics into the normalized observation
// the policy engine consumes. Latency is not directly measurable from
// port counters, so it is approximated from a configured base plus a
// loss-driven congestion term.
type Estimator struct {
	ctrl    *config.Controller
	classes *config.Classes
	now     func() time.Time
}

// New creates an estimator using the wall clock
func New(ctrl *config.Controller, classes *config.Classes) *Estimator {
	return &Estimator{ctrl: ctrl, classes: classes, now: time.Now}
}

// NewWithClock creates an estimator with an injectable clock
func NewWithClock(ctrl *config.Controller, classes *config.Classes, now func() time.Time) *Estimator {
	return &Estimator{ctrl: ctrl, classes: classes, now: now}
}

// Estimate builds the observation from the registry's merged port view.
// Ports absent from the map contribute nothing to their class.
func (e *Estimator) Estimate(ports map[int]registry.PortMetrics) (qos.StateVector, ClassObservation) {
	workBw, workLoss := e.classTotals(e.classes.WorkPorts, ports)
	entBw, entLoss := e.classTotals(e.classes.EntertainPorts, ports)

	workLat := e.latencyProxy(workLoss)
	entLat := e.latencyProxy(entLoss)

	total := e.ctrl.TotalBandwidth
	utilization := (workBw + entBw) / total
	hour := e.now().Hour()

	obs := ClassObservation{
		WorkBandwidthMbps:      workBw,
		EntertainBandwidthMbps: entBw,
		WorkLatencyMs:          workLat,
		EntertainLatencyMs:     entLat,
		WorkLossRatio:          workLoss,
		EntertainLossRatio:     entLoss,
		TotalUtilization:       utilization,
		Hour:                   hour,
	}

	var state qos.StateVector
	state[qos.StateWorkBandwidth] = workBw / total
	state[qos.StateEntertainBandwidth] = entBw / total
	state[qos.StateWorkLatency] = workLat / e.ctrl.LatencyCeilingMs
	state[qos.StateEntertainLatency] = entLat / e.ctrl.LatencyCeilingMs
	state[qos.StateWorkLoss] = workLoss
	state[qos.StateEntertainLoss] = entLoss
	state[qos.StateTotalUtilization] = utilization
	state[qos.StateTimeOfDay] = float64(hour) / 23.0
	state.Clamp()

	return state, obs
}

// classTotals sums bandwidth over a class's ports and averages loss
// across the ports that reported any packets.
func (e *Estimator) classTotals(classPorts []int, ports map[int]registry.PortMetrics) (bw, loss float64) {
	n := 0
	for _, p := range classPorts {
		m, ok := ports[p]
		if !ok {
			continue
		}
		bw += m.BandwidthMbps
		loss += m.LossRatio
		n++
	}
	if n > 0 {
		loss /= float64(n)
	}
	return bw, loss
}

// latencyProxy maps a loss ratio onto an estimated latency. A lossless
// class sits at the configured base; loss scales it toward the ceiling.
func (e *Estimator) latencyProxy(loss float64) float64 {
	lat := e.ctrl.LatencyProxyMs + loss*(e.ctrl.LatencyCeilingMs-e.ctrl.LatencyProxyMs)
	if lat > e.ctrl.LatencyCeilingMs {
		lat = e.ctrl.LatencyCeilingMs
	}
	return lat
}
