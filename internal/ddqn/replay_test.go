package ddqn

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exp(reward float64) Experience {
	return Experience{
		State:     []float64{0.1, 0.2},
		Action:    0,
		Reward:    reward,
		NextState: []float64{0.3, 0.4},
	}
}

func TestReplayBuffer_FIFOEviction(t *testing.T) {
	b := NewReplayBuffer(4, rand.New(rand.NewSource(1)))

	for i := 0; i < 6; i++ {
		b.Push(exp(float64(i)))
	}

	assert.Equal(t, 4, b.Len(), "buffer should stay at capacity")

	// The two oldest entries were overwritten
	for i := 0; i < 2; i++ {
		reward := float64(i)
		assert.False(t, b.Contains(func(e Experience) bool { return e.Reward == reward }),
			"entry %d should have been evicted", i)
	}
	for i := 2; i < 6; i++ {
		reward := float64(i)
		assert.True(t, b.Contains(func(e Experience) bool { return e.Reward == reward }),
			"entry %d should still be present", i)
	}
}

func TestReplayBuffer_SampleClampsToSize(t *testing.T) {
	b := NewReplayBuffer(10, rand.New(rand.NewSource(1)))
	b.Push(exp(1))
	b.Push(exp(2))

	batch := b.Sample(5)
	assert.Len(t, batch, 2, "sample should be clamped to the stored count")
}

func TestReplayBuffer_SampleWithoutReplacement(t *testing.T) {
	b := NewReplayBuffer(8, rand.New(rand.NewSource(7)))
	for i := 0; i < 8; i++ {
		b.Push(exp(float64(i)))
	}

	batch := b.Sample(8)
	seen := make(map[float64]bool)
	for _, e := range batch {
		assert.False(t, seen[e.Reward], "transition sampled twice")
		seen[e.Reward] = true
	}
}

func TestPrioritizedBuffer_WeightsNormalized(t *testing.T) {
	b := NewPrioritizedBuffer(16, 0.6, rand.New(rand.NewSource(3)))
	for i := 0; i < 16; i++ {
		b.Push(exp(float64(i)))
	}
	b.UpdatePriorities([]int{0, 1, 2, 3}, []float64{5.0, 0.5, -2.0, 0.0})

	_, indices, weights := b.Sample(8, 0.4)
	require.Len(t, weights, 8)
	require.Len(t, indices, 8)

	maxW := 0.0
	for _, w := range weights {
		assert.Greater(t, w, 0.0, "importance weight must be positive")
		assert.LessOrEqual(t, w, 1.0, "importance weights are normalized by their max")
		if w > maxW {
			maxW = w
		}
	}
	assert.InDelta(t, 1.0, maxW, 1e-12, "the largest weight normalizes to one")
}

func TestPrioritizedBuffer_PriorityFloor(t *testing.T) {
	b := NewPrioritizedBuffer(4, 0.6, rand.New(rand.NewSource(3)))
	b.Push(exp(1))
	b.UpdatePriorities([]int{0}, []float64{0.0})

	assert.Equal(t, priorityFloor, b.priorities[0], "zero TD error keeps a sampling floor")
}

func TestPrioritizedBuffer_NewEntriesGetMaxPriority(t *testing.T) {
	b := NewPrioritizedBuffer(8, 0.6, rand.New(rand.NewSource(3)))
	b.Push(exp(1))
	b.UpdatePriorities([]int{0}, []float64{10.0})
	b.Push(exp(2))

	assert.Equal(t, b.priorities[0], b.priorities[1],
		"a fresh transition inherits the maximum stored priority")
}

func TestPrioritizedBuffer_MaxPrioritySurvivesEviction(t *testing.T) {
	b := NewPrioritizedBuffer(2, 0.6, rand.New(rand.NewSource(3)))
	b.Push(exp(1))
	b.UpdatePriorities([]int{0}, []float64{10.0})

	// Wrap the ring so the entry that set the ceiling is overwritten
	b.Push(exp(2))
	b.Push(exp(3))

	assert.InDelta(t, 10.0+priorityFloor, b.priorities[0], 1e-12,
		"a fresh transition still inherits the highest priority ever seen")
	assert.Equal(t, b.priorities[0], b.priorities[1])
}
