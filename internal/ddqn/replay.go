package ddqn

import (
	"math"
	"math/rand"
	"sort"
)

// Experience is one stored transition. Immutable once created.
type Experience struct {
	State     []float64
	Action    int
	Reward    float64
	NextState []float64
	Done      bool
}

// ReplayBuffer is a fixed-capacity ring store with uniform sampling.
// Insertion past capacity overwrites the oldest slot.
type ReplayBuffer struct {
	buf      []Experience
	capacity int
	pos      int
	size     int
	rng      *rand.Rand
}

// NewReplayBuffer creates a uniform replay buffer
func NewReplayBuffer(capacity int, rng *rand.Rand) *ReplayBuffer {
	return &ReplayBuffer{
		buf:      make([]Experience, capacity),
		capacity: capacity,
		rng:      rng,
	}
}

// Push stores a transition, evicting the oldest one at capacity
func (b *ReplayBuffer) Push(e Experience) {
	b.buf[b.pos] = e
	b.pos = (b.pos + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Sample returns batchSize transitions drawn uniformly without replacement
func (b *ReplayBuffer) Sample(batchSize int) []Experience {
	if batchSize > b.size {
		batchSize = b.size
	}
	idx := b.rng.Perm(b.size)[:batchSize]
	out := make([]Experience, batchSize)
	for i, j := range idx {
		out[i] = b.buf[j]
	}
	return out
}

// Len returns the number of stored transitions
func (b *ReplayBuffer) Len() int { return b.size }

// Contains reports whether any stored transition equals e. Test helper for
// eviction checks; linear scan.
func (b *ReplayBuffer) Contains(match func(Experience) bool) bool {
	for i := 0; i < b.size; i++ {
		if match(b.buf[i]) {
			return true
		}
	}
	return false
}

const priorityFloor = 1e-5

// PrioritizedBuffer is a ring store whose sampling probability is
// proportional to priority^alpha. New entries get the current maximum
// priority so they are sampled at least once.
type PrioritizedBuffer struct {
	buf        []Experience
	priorities []float64
	capacity   int
	pos        int
	size       int
	alpha      float64
	// maxPriority tracks the highest priority ever written, so Push stays
	// O(1) at large capacities.
	maxPriority float64
	rng         *rand.Rand
}

// NewPrioritizedBuffer creates a prioritized replay buffer
func NewPrioritizedBuffer(capacity int, alpha float64, rng *rand.Rand) *PrioritizedBuffer {
	return &PrioritizedBuffer{
		buf:         make([]Experience, capacity),
		priorities:  make([]float64, capacity),
		capacity:    capacity,
		alpha:       alpha,
		maxPriority: 1.0,
		rng:         rng,
	}
}

// Push stores a transition with the maximum priority seen so far
func (b *PrioritizedBuffer) Push(e Experience) {
	b.buf[b.pos] = e
	b.priorities[b.pos] = b.maxPriority
	b.pos = (b.pos + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Sample draws batchSize transitions with probability proportional to
// priority^alpha, without replacement, and returns the importance-sampling
// weights normalized by their own maximum.
func (b *PrioritizedBuffer) Sample(batchSize int, beta float64) ([]Experience, []int, []float64) {
	if b.size == 0 {
		return nil, nil, nil
	}
	if batchSize > b.size {
		batchSize = b.size
	}

	probs := make([]float64, b.size)
	var total float64
	for i := 0; i < b.size; i++ {
		probs[i] = math.Pow(b.priorities[i], b.alpha)
		total += probs[i]
	}
	for i := range probs {
		probs[i] /= total
	}

	// Weighted sampling without replacement (Efraimidis-Spirakis keys)
	type keyed struct {
		idx int
		key float64
	}
	keys := make([]keyed, b.size)
	for i := 0; i < b.size; i++ {
		u := b.rng.Float64()
		if u == 0 {
			u = math.SmallestNonzeroFloat64
		}
		keys[i] = keyed{idx: i, key: math.Pow(u, 1.0/probs[i])}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].key > keys[j].key })

	indices := make([]int, batchSize)
	experiences := make([]Experience, batchSize)
	weights := make([]float64, batchSize)
	n := float64(b.size)
	maxWeight := 0.0
	for i := 0; i < batchSize; i++ {
		idx := keys[i].idx
		indices[i] = idx
		experiences[i] = b.buf[idx]
		weights[i] = math.Pow(n*probs[idx], -beta)
		if weights[i] > maxWeight {
			maxWeight = weights[i]
		}
	}
	for i := range weights {
		weights[i] /= maxWeight
	}

	return experiences, indices, weights
}

// UpdatePriorities writes back priorities after a training step. A small
// floor constant keeps every entry's sampling probability above zero.
func (b *PrioritizedBuffer) UpdatePriorities(indices []int, priorities []float64) {
	for i, idx := range indices {
		if idx < 0 || idx >= b.size {
			continue
		}
		p := math.Abs(priorities[i]) + priorityFloor
		b.priorities[idx] = p
		if p > b.maxPriority {
			b.maxPriority = p
		}
	}
}

// Len returns the number of stored transitions
func (b *PrioritizedBuffer) Len() int { return b.size }
