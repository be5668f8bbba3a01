package env

import (
	"math"
	"math/rand"

	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/internal/qos"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/pkg/config"
)

// allocation is the bandwidth split an action grants to the two classes,
// as fractions of the total link capacity.
type allocation struct {
	work      float64
	entertain float64
}

var allocations = map[qos.Action]allocation{
	qos.ActionWorkPriority:      {work: 0.7, entertain: 0.3},
	qos.ActionBalanced:          {work: 0.5, entertain: 0.5},
	qos.ActionEntertainPriority: {work: 0.3, entertain: 0.7},
}

// Simulator is a synthetic network with diurnal demand used for offline
// training. Demand for each class follows the hour of day plus noise;
// an action splits capacity between the classes, and demand exceeding
// its share shows up as loss and queueing latency.
type Simulator struct {
	cfg    *config.Environment
	reward *config.Reward
	rng    *rand.Rand

	hour       int
	step       int
	workDemand float64
	entDemand  float64
}

// NewSimulator creates a simulator seeded for reproducible episodes
func NewSimulator(cfg *config.Environment, reward *config.Reward, seed int64) *Simulator {
	return &Simulator{
		cfg:    cfg,
		reward: reward,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Reset starts a new episode at a random hour and returns the initial
// observation.
func (s *Simulator) Reset() qos.StateVector {
	s.step = 0
	s.hour = s.rng.Intn(24)
	s.workDemand = s.cfg.BaseWorkDemand
	s.entDemand = s.cfg.BaseEntertainDemand
	state, _ := s.observe(qos.ActionBalanced)
	return state
}

// Step applies an action, advances the simulated clock by one hour and
// returns the next observation, the reward and whether the episode ended.
func (s *Simulator) Step(action qos.Action) (qos.StateVector, float64, bool) {
	if !action.Valid() {
		action = qos.ActionBalanced
	}

	state, out := s.observe(action)
	reward := Score(s.reward, s.hour, action, out)

	s.step++
	s.hour = (s.hour + 1) % 24
	s.drift()

	done := s.step >= s.cfg.MaxSteps
	return state, reward, done
}

// Outcome is what the network delivered under one action, in engineering
// units. The same shape scores both simulated steps and live observations.
type Outcome struct {
	WorkBw      float64
	EntBw       float64
	WorkLat     float64
	EntLat      float64
	WorkLoss    float64
	EntLoss     float64
	Utilization float64
}

func (s *Simulator) observe(action qos.Action) (qos.StateVector, Outcome) {
	workMult, entMult := demandMultipliers(s.hour)

	workDemand := math.Max(0, s.workDemand*workMult+s.noise(s.cfg.DemandNoise))
	entDemand := math.Max(0, s.entDemand*entMult+s.noise(s.cfg.DemandNoise))

	alloc := allocations[action]
	total := s.cfg.TotalBandwidth

	var out Outcome
	out.WorkBw, out.WorkLoss, out.WorkLat = s.deliver(workDemand, alloc.work*total)
	out.EntBw, out.EntLoss, out.EntLat = s.deliver(entDemand, alloc.entertain*total)
	out.Utilization = (out.WorkBw + out.EntBw) / total

	var state qos.StateVector
	state[qos.StateWorkBandwidth] = out.WorkBw / total
	state[qos.StateEntertainBandwidth] = out.EntBw / total
	state[qos.StateWorkLatency] = out.WorkLat / 100.0
	state[qos.StateEntertainLatency] = out.EntLat / 100.0
	state[qos.StateWorkLoss] = out.WorkLoss
	state[qos.StateEntertainLoss] = out.EntLoss
	state[qos.StateTotalUtilization] = out.Utilization
	state[qos.StateTimeOfDay] = float64(s.hour) / 23.0
	state.Clamp()

	return state, out
}

// deliver resolves one class's demand against its capacity share.
// Overload is dropped, and the drop ratio feeds a queueing latency term.
func (s *Simulator) deliver(demand, capacity float64) (bw, loss, latency float64) {
	latency = s.cfg.BaseLatencyMs
	if demand <= capacity {
		return demand, 0, latency
	}
	bw = capacity
	loss = (demand - capacity) / demand
	latency += loss * 90.0
	return bw, loss, latency
}

func (s *Simulator) drift() {
	s.workDemand = math.Max(5, s.workDemand+s.noise(s.cfg.DriftNoise))
	s.entDemand = math.Max(5, s.entDemand+s.noise(s.cfg.DriftNoise))
}

func (s *Simulator) noise(scale float64) float64 {
	return (s.rng.Float64()*2 - 1) * scale
}

// demandMultipliers gives each class's demand scaling for an hour of day
func demandMultipliers(hour int) (work, entertain float64) {
	switch {
	case hour >= 6 && hour < 9:
		return 1.2, 0.6
	case hour >= 12 && hour < 14:
		return 0.8, 1.2
	case hour >= 9 && hour < 18:
		return 1.8, 0.4
	case hour >= 18 && hour < 23:
		return 0.5, 2.0
	default:
		return 0.3, 0.7
	}
}

func isWorkHour(hour int) bool {
	return hour >= 9 && hour < 18
}

func isEveningHour(hour int) bool {
	return hour >= 18 && hour < 23
}

// Score rates one delivered outcome under one action at one hour. The
// terms reward serving the class the hour favours, keeping both classes
// above starvation and keeping the link busy, and penalize loss, latency
// and lopsided splits outside the hours that justify them.
func Score(r *config.Reward, hour int, action qos.Action, out Outcome) float64 {
	var reward float64

	// Priority class service quality for the current hour
	var priBw float64
	switch {
	case isWorkHour(hour):
		priBw = out.WorkBw
		if action == qos.ActionWorkPriority {
			reward += r.TimeBonus
		}
	case isEveningHour(hour):
		priBw = out.EntBw
		if action == qos.ActionEntertainPriority {
			reward += r.TimeBonus
		}
	default:
		priBw = math.Min(out.WorkBw, out.EntBw)
		if action == qos.ActionBalanced {
			reward += r.TimeBonus
		}
	}

	switch {
	case priBw >= r.GoodBandwidthMbps:
		reward += r.GoodServiceBonus
	case priBw >= r.FairBandwidthMbps:
		reward += r.FairServiceBonus
	case priBw < r.PoorBandwidthMbps:
		reward -= r.PoorServicePenalty
	}

	// Balance shaping
	if out.WorkBw >= r.BalancedLowMbps && out.WorkBw <= r.BalancedHighMbps &&
		out.EntBw >= r.BalancedLowMbps && out.EntBw <= r.BalancedHighMbps {
		reward += r.BalancedBonus
	}
	if math.Abs(out.WorkBw-out.EntBw) > r.ImbalanceGapMbps && !isWorkHour(hour) && !isEveningHour(hour) {
		reward -= r.ImbalancePenalty
	}

	// Starvation and fairness floors
	if out.WorkBw < r.StarvedMbps || out.EntBw < r.StarvedMbps {
		reward -= r.StarvationPenalty
	}
	if out.WorkBw < r.FairnessFloorMbps || out.EntBw < r.FairnessFloorMbps {
		reward -= r.FairnessPenalty
	}

	// Continuous terms
	reward += r.UtilizationWeight * out.Utilization
	reward -= r.LossWeight * (out.WorkLoss + out.EntLoss)
	reward -= r.LatencyWeight * math.Max(0, out.WorkLat-r.LatencyPenaltyMs)
	reward -= r.LatencyWeight * math.Max(0, out.EntLat-r.LatencyPenaltyMs)

	return reward
}
