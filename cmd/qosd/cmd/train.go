package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/internal/ddqn"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/internal/env"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/internal/trainer"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/pkg/logger"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/pkg/storage"
)

var (
	trainEpisodes int
	trainSeed     int64
	trainResume   bool
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the policy against the simulated network",
	Long: "Runs episodic Double DQN training in the built-in network simulator\n" +
		"and checkpoints the best-performing policy for the live controller.",
	RunE: runTrain,
}

func init() {
	trainCmd.Flags().IntVar(&trainEpisodes, "episodes", 0, "override the configured episode count")
	trainCmd.Flags().Int64Var(&trainSeed, "seed", 0, "simulator seed (0 uses the current time)")
	trainCmd.Flags().BoolVar(&trainResume, "resume", false, "continue from the best saved checkpoint")
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.GetLogger()

	if trainEpisodes > 0 {
		cfg.Training.Episodes = trainEpisodes
	}
	seed := trainSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	agent := ddqn.NewAgentWithSeed(cfg.Agent, seed)
	store := storage.NewCheckpointStore(&cfg.Persistence, agent)
	if trainResume {
		if err := store.LoadBest(); err != nil {
			log.Warnf("Resume requested but no usable checkpoint: %v", err)
		} else {
			log.Infof("Resuming from %s", store.BestPath())
		}
	}

	sim := env.NewSimulator(&cfg.Environment, &cfg.Reward, seed)
	tr := trainer.New(&cfg.Training, agent, sim, store)

	runCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		store.Run(runCtx)
	}()

	err = tr.Run(runCtx)
	cancel()
	wg.Wait()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("Training interrupted, checkpoints are intact")
			return nil
		}
		return err
	}
	return nil
}
