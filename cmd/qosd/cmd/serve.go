package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/internal/controller"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/internal/ddqn"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/pkg/config"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/pkg/logger"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/pkg/metrics"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/pkg/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the live QoS controller",
	Long: "Starts the southbound listener, loads the best trained policy and\n" +
		"drives the monitoring and decision loops until interrupted.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.GetLogger()
	log.Info("Starting QoS controller...")

	// Log settings can be retuned without a restart
	cfg.Watch(func(updated *config.Config, err error) {
		if err != nil {
			log.Errorf("Ignoring config change: %v", err)
			return
		}
		logger.Initialize(&updated.Logging)
		log.Info("Reloaded logging configuration")
	})

	agent := ddqn.NewAgent(cfg.Agent)
	store := storage.NewCheckpointStore(&cfg.Persistence, agent)
	if err := store.LoadBest(); err != nil {
		log.Warnf("No usable policy checkpoint, starting untrained: %v", err)
	} else {
		log.Infof("Loaded policy from %s", store.BestPath())
	}

	collectors := metrics.NewCollectors()
	metricsSrv := metrics.NewServer(&cfg.Metrics, collectors)
	if err := metricsSrv.Start(); err != nil {
		return err
	}

	ctrl, err := controller.New(cfg, agent, collectors)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := ctrl.Start(runCtx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Infof("Received signal: %v", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Controller.ShutdownTimeout)
	defer shutdownCancel()

	if err := ctrl.Stop(shutdownCtx); err != nil {
		log.Errorf("Failed to stop controller gracefully: %v", err)
	}
	if err := metricsSrv.Stop(shutdownCtx); err != nil {
		log.Errorf("Failed to stop metrics server: %v", err)
	}

	log.Info("QoS controller stopped")
	return nil
}
