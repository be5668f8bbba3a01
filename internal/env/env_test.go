package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/internal/qos"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/pkg/config"
)

func testEnvConfig() *config.Environment {
	return &config.Environment{
		TotalBandwidth:      100,
		BaseWorkDemand:      40,
		BaseEntertainDemand: 30,
		BaseLatencyMs:       10,
		DemandNoise:         5,
		DriftNoise:          3,
		MaxSteps:            50,
	}
}

func testRewardConfig() *config.Reward {
	return &config.Reward{
		GoodBandwidthMbps:  50,
		FairBandwidthMbps:  40,
		PoorBandwidthMbps:  30,
		StarvedMbps:        15,
		GoodLatencyMs:      20,
		PoorLatencyMs:      50,
		LatencyPenaltyMs:   30,
		GoodServiceBonus:   15,
		FairServiceBonus:   10,
		BalancedBonus:      12,
		BalancedLowMbps:    35,
		BalancedHighMbps:   65,
		ImbalanceGapMbps:   30,
		PoorServicePenalty: 20,
		StarvationPenalty:  8,
		ImbalancePenalty:   10,
		UtilizationWeight:  3,
		LossWeight:         15,
		LatencyWeight:      0.2,
		TimeBonus:          5,
		FairnessPenalty:    3,
		FairnessFloorMbps:  10,
	}
}

func TestSimulator_DeterministicWithSeed(t *testing.T) {
	a := NewSimulator(testEnvConfig(), testRewardConfig(), 42)
	b := NewSimulator(testEnvConfig(), testRewardConfig(), 42)

	sa := a.Reset()
	sb := b.Reset()
	assert.Equal(t, sa, sb, "same seed, same initial observation")

	for i := 0; i < 20; i++ {
		na, ra, da := a.Step(qos.ActionBalanced)
		nb, rb, db := b.Step(qos.ActionBalanced)
		assert.Equal(t, na, nb)
		assert.Equal(t, ra, rb)
		assert.Equal(t, da, db)
	}
}

func TestSimulator_StatesBounded(t *testing.T) {
	s := NewSimulator(testEnvConfig(), testRewardConfig(), 7)
	state := s.Reset()

	for step := 0; ; step++ {
		for i, v := range state {
			require.GreaterOrEqual(t, v, 0.0, "component %d out of range at step %d", i, step)
			require.LessOrEqual(t, v, 1.0, "component %d out of range at step %d", i, step)
		}
		var done bool
		state, _, done = s.Step(qos.Action(step % qos.NumActions))
		if done {
			break
		}
	}
}

func TestSimulator_EpisodeEndsAtMaxSteps(t *testing.T) {
	cfg := testEnvConfig()
	cfg.MaxSteps = 10
	s := NewSimulator(cfg, testRewardConfig(), 7)
	s.Reset()

	for i := 0; i < 9; i++ {
		_, _, done := s.Step(qos.ActionBalanced)
		assert.False(t, done, "episode ended early at step %d", i)
	}
	_, _, done := s.Step(qos.ActionBalanced)
	assert.True(t, done)
}

func TestSimulator_InvalidActionTreatedAsBalanced(t *testing.T) {
	a := NewSimulator(testEnvConfig(), testRewardConfig(), 5)
	b := NewSimulator(testEnvConfig(), testRewardConfig(), 5)
	a.Reset()
	b.Reset()

	na, ra, _ := a.Step(qos.Action(99))
	nb, rb, _ := b.Step(qos.ActionBalanced)
	assert.Equal(t, nb, na)
	assert.Equal(t, rb, ra)
}

func TestScore_LossIsPenalized(t *testing.T) {
	r := testRewardConfig()
	clean := Outcome{WorkBw: 45, EntBw: 45, WorkLat: 10, EntLat: 10, Utilization: 0.9}
	lossy := clean
	lossy.WorkLoss = 0.3

	assert.Greater(t, Score(r, 10, qos.ActionBalanced, clean), Score(r, 10, qos.ActionBalanced, lossy))
}

func TestScore_StarvationIsPenalized(t *testing.T) {
	r := testRewardConfig()
	fair := Outcome{WorkBw: 50, EntBw: 40, WorkLat: 10, EntLat: 10, Utilization: 0.9}
	starved := Outcome{WorkBw: 85, EntBw: 5, WorkLat: 10, EntLat: 10, Utilization: 0.9}

	assert.Greater(t, Score(r, 10, qos.ActionWorkPriority, fair), Score(r, 10, qos.ActionWorkPriority, starved))
}

func TestScore_MatchingActionEarnsTimeBonus(t *testing.T) {
	r := testRewardConfig()
	out := Outcome{WorkBw: 60, EntBw: 30, WorkLat: 10, EntLat: 10, Utilization: 0.9}

	// During business hours prioritizing work scores above prioritizing
	// entertainment on the same delivered outcome.
	assert.Greater(t,
		Score(r, 10, qos.ActionWorkPriority, out),
		Score(r, 10, qos.ActionEntertainPriority, out))
}

func TestScore_EveningFavoursEntertainment(t *testing.T) {
	r := testRewardConfig()
	out := Outcome{WorkBw: 30, EntBw: 60, WorkLat: 10, EntLat: 10, Utilization: 0.9}

	assert.Greater(t,
		Score(r, 20, qos.ActionEntertainPriority, out),
		Score(r, 20, qos.ActionWorkPriority, out))
}
