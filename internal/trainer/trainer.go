package trainer

import (
	"context"
	"math"

	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/internal/ddqn"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/internal/qos"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/pkg/config"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/pkg/logger"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/pkg/storage"
)

// Environment is the training world the agent interacts with
type Environment interface {
	Reset() qos.StateVector
	Step(action qos.Action) (next qos.StateVector, reward float64, done bool)
}

// EpisodeRecord summarizes one finished episode
type EpisodeRecord struct {
	Reward   float64
	Steps    int
	MeanLoss float64
}

// Trainer runs episodic offline training against a simulated environment
type Trainer struct {
	cfg   *config.Training
	agent *ddqn.Agent
	env   Environment
	store *storage.CheckpointStore

	bestReward float64
	records    []EpisodeRecord
}

// New creates a trainer. The store may be nil when persistence is disabled.
func New(cfg *config.Training, agent *ddqn.Agent, env Environment, store *storage.CheckpointStore) *Trainer {
	return &Trainer{
		cfg:        cfg,
		agent:      agent,
		env:        env,
		store:      store,
		bestReward: math.Inf(-1),
	}
}

// Run trains for the configured number of episodes. Cancelling the context
// stops at the next episode boundary with checkpoints intact.
func (t *Trainer) Run(ctx context.Context) error {
	log := logger.GetLogger()
	log.Infof("Starting training: %d episodes, %d max steps", t.cfg.Episodes, t.cfg.MaxSteps)

	for episode := 1; episode <= t.cfg.Episodes; episode++ {
		select {
		case <-ctx.Done():
			log.Infof("Training interrupted after %d episodes", episode-1)
			return ctx.Err()
		default:
		}

		rec := t.runEpisode()
		t.records = append(t.records, rec)
		t.agent.DecayEpsilon()

		if rec.Reward > t.bestReward {
			t.bestReward = rec.Reward
			if t.store != nil {
				if err := t.store.SaveBest(); err != nil {
					log.Errorf("Failed to save best model: %v", err)
				} else {
					log.Infof("New best reward %.2f at episode %d", rec.Reward, episode)
				}
			}
		}

		if t.store != nil && episode%t.cfg.CheckpointInterval == 0 {
			if err := t.store.SaveEpisode(episode); err != nil {
				log.Errorf("Failed to save episode checkpoint: %v", err)
			}
		}

		if t.cfg.ReportInterval > 0 && episode%t.cfg.ReportInterval == 0 {
			log.WithFields(map[string]interface{}{
				"episode":     episode,
				"reward":      rec.Reward,
				"mean_10":     t.trailingMean(10),
				"mean_100":    t.trailingMean(100),
				"loss":        rec.MeanLoss,
				"epsilon":     t.agent.Epsilon(),
				"memory":      t.agent.MemoryLen(),
				"train_steps": t.agent.TrainingSteps(),
			}).Info("Training progress")
		}
	}

	log.Infof("Training complete: best reward %.2f over %d episodes", t.bestReward, t.cfg.Episodes)
	return nil
}

// runEpisode plays one episode and summarizes its reward, length and the
// mean training loss over the episode's optimization steps.
func (t *Trainer) runEpisode() EpisodeRecord {
	state := t.env.Reset()
	var rec EpisodeRecord
	var lossSum float64
	var lossCount int

	for step := 0; step < t.cfg.MaxSteps; step++ {
		action := t.agent.SelectAction(state.Slice(), t.agent.Epsilon())
		next, reward, done := t.env.Step(action)

		t.agent.Remember(state.Slice(), action, reward, next.Slice(), done)
		rec.Reward += reward
		rec.Steps++

		if loss, ok := t.agent.TrainStep(); ok {
			lossSum += loss
			lossCount++
		}
		if t.agent.RecordStep() {
			t.agent.UpdateTarget()
		}

		state = next
		if done {
			break
		}
	}

	if lossCount > 0 {
		rec.MeanLoss = lossSum / float64(lossCount)
	}
	return rec
}

// BestReward returns the highest episode reward seen so far
func (t *Trainer) BestReward() float64 {
	return t.bestReward
}

// Records returns the per-episode summaries recorded so far
func (t *Trainer) Records() []EpisodeRecord {
	out := make([]EpisodeRecord, len(t.records))
	copy(out, t.records)
	return out
}

// EpisodeRewards returns the per-episode rewards recorded so far
func (t *Trainer) EpisodeRewards() []float64 {
	out := make([]float64, len(t.records))
	for i, rec := range t.records {
		out[i] = rec.Reward
	}
	return out
}

func (t *Trainer) trailingMean(n int) float64 {
	if len(t.records) == 0 {
		return 0
	}
	if n > len(t.records) {
		n = len(t.records)
	}
	var sum float64
	for _, rec := range t.records[len(t.records)-n:] {
		sum += rec.Reward
	}
	return sum / float64(n)
}
