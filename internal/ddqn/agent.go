package ddqn

import (
	"math/rand"
	"sync"
	"time"

	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/internal/qos"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/pkg/config"
)

// Agent is the Double DQN policy engine: a policy network for action
// selection, a periodically hard-synced target network for bootstrapped
// value targets, and a replay buffer feeding Adam-optimized training steps.
type Agent struct {
	cfg config.Agent

	policy *Network
	target *Network
	opt    *Adam

	uniform     *ReplayBuffer
	prioritized *PrioritizedBuffer

	epsilon       float64
	steps         int64
	trainingSteps int64

	// rng is shared with the replay buffers; rngMu serializes the draws
	// made under the read lock, where mu alone does not exclude other
	// readers.
	rng   *rand.Rand
	rngMu sync.Mutex
	mu    sync.RWMutex
}

// NewAgent creates an agent with randomly initialized policy and target
// networks (the target starts as an exact copy of the policy).
func NewAgent(cfg config.Agent) *Agent {
	return NewAgentWithSeed(cfg, time.Now().UnixNano())
}

// NewAgentWithSeed creates an agent with a deterministic random source
func NewAgentWithSeed(cfg config.Agent, seed int64) *Agent {
	rng := rand.New(rand.NewSource(seed))

	a := &Agent{
		cfg:     cfg,
		policy:  NewNetwork(cfg.StateDim, cfg.ActionDim, cfg.HiddenLayers, rng),
		epsilon: cfg.EpsilonStart,
		rng:     rng,
	}
	a.target = a.policy.Clone()
	a.opt = NewAdam(a.policy, cfg.LearningRate)

	if cfg.PrioritizedReplay {
		a.prioritized = NewPrioritizedBuffer(cfg.MemorySize, cfg.PriorityAlpha, rng)
	} else {
		a.uniform = NewReplayBuffer(cfg.MemorySize, rng)
	}

	return a
}

// SelectAction picks an action epsilon-greedily. With probability epsilon a
// uniformly random action is returned; otherwise the argmax of the policy
// network's Q-values, with ties broken by first index. At epsilon zero the
// choice is fully deterministic for fixed weights and state.
func (a *Agent) SelectAction(state []float64, epsilon float64) qos.Action {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if epsilon > 0 {
		a.rngMu.Lock()
		explore := a.rng.Float64() < epsilon
		var choice int
		if explore {
			choice = a.rng.Intn(a.cfg.ActionDim)
		}
		a.rngMu.Unlock()
		if explore {
			return qos.Action(choice)
		}
	}

	q := a.policy.Forward(state)
	best := 0
	for i := 1; i < len(q); i++ {
		if q[i] > q[best] {
			best = i
		}
	}
	return qos.Action(best)
}

// Remember stores a transition in the replay buffer
func (a *Agent) Remember(state []float64, action qos.Action, reward float64, nextState []float64, done bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e := Experience{
		State:     append([]float64(nil), state...),
		Action:    int(action),
		Reward:    reward,
		NextState: append([]float64(nil), nextState...),
		Done:      done,
	}
	if a.prioritized != nil {
		a.prioritized.Push(e)
	} else {
		a.uniform.Push(e)
	}
}

// TrainStep performs one minibatch update and returns the batch loss.
// It is a no-op returning ok=false until the buffer holds a full batch.
func (a *Agent) TrainStep() (loss float64, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.memoryLen() < a.cfg.BatchSize {
		return 0, false
	}

	var (
		batch   []Experience
		indices []int
		weights []float64
	)
	if a.prioritized != nil {
		batch, indices, weights = a.prioritized.Sample(a.cfg.BatchSize, a.cfg.PriorityBeta)
	} else {
		batch = a.uniform.Sample(a.cfg.BatchSize)
	}

	grads := newGradients(a.policy)
	tdErrors := make([]float64, len(batch))
	totalLoss := 0.0
	invBatch := 1.0 / float64(len(batch))

	for i, e := range batch {
		// Double DQN target: the policy network selects the next action,
		// the target network evaluates it.
		targetVal := e.Reward
		if !e.Done {
			nextQ := a.policy.Forward(e.NextState)
			bestNext := 0
			for j := 1; j < len(nextQ); j++ {
				if nextQ[j] > nextQ[bestNext] {
					bestNext = j
				}
			}
			targetQ := a.target.Forward(e.NextState)
			targetVal += a.cfg.Gamma * targetQ[bestNext]
		}

		acts, preacts := a.policy.forwardCached(e.State)
		pred := acts[len(acts)-1].AtVec(e.Action)
		diff := pred - targetVal
		tdErrors[i] = diff

		// Huber loss (delta = 1) and its derivative w.r.t. the prediction
		var sampleLoss, grad float64
		if diff >= -1 && diff <= 1 {
			sampleLoss = 0.5 * diff * diff
			grad = diff
		} else {
			if diff > 0 {
				sampleLoss = diff - 0.5
				grad = 1
			} else {
				sampleLoss = -diff - 0.5
				grad = -1
			}
		}

		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		totalLoss += sampleLoss * w * invBatch

		outGrad := make([]float64, a.cfg.ActionDim)
		outGrad[e.Action] = grad * w * invBatch
		a.policy.backward(acts, preacts, outGrad, grads)
	}

	grads.clip(a.cfg.GradClipNorm)
	a.opt.Step(a.policy, grads)
	a.trainingSteps++

	if a.prioritized != nil {
		a.prioritized.UpdatePriorities(indices, tdErrors)
	}

	return totalLoss, true
}

// UpdateTarget hard-copies the policy weights into the target network.
// Called on a fixed step cadence, never every step.
func (a *Agent) UpdateTarget() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.target.CopyFrom(a.policy)
}

// DecayEpsilon applies one geometric decay step toward the configured floor
func (a *Agent) DecayEpsilon() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.epsilon *= a.cfg.EpsilonDecay
	if a.epsilon < a.cfg.EpsilonEnd {
		a.epsilon = a.cfg.EpsilonEnd
	}
}

// Epsilon returns the current exploration rate
func (a *Agent) Epsilon() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.epsilon
}

// RecordStep increments the environment step counter and reports whether
// the target network is due for a sync.
func (a *Agent) RecordStep() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.steps++
	return a.steps%int64(a.cfg.TargetUpdateFreq) == 0
}

// Steps returns the total environment steps taken
func (a *Agent) Steps() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.steps
}

// TrainingSteps returns the number of gradient updates performed
func (a *Agent) TrainingSteps() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.trainingSteps
}

// MemoryLen returns the number of transitions in the replay buffer
func (a *Agent) MemoryLen() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.memoryLen()
}

func (a *Agent) memoryLen() int {
	if a.prioritized != nil {
		return a.prioritized.Len()
	}
	return a.uniform.Len()
}
