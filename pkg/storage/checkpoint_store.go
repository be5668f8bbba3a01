package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/internal/ddqn"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/pkg/config"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/pkg/logger"
)

// CheckpointStore manages policy checkpoint files: the best-model bundle the
// live controller loads at startup, rotated backups, and an optional
// periodic save loop for long-running training sessions.
type CheckpointStore struct {
	cfg   *config.Persistence
	agent *ddqn.Agent
}

// NewCheckpointStore creates a store bound to one agent
func NewCheckpointStore(cfg *config.Persistence, agent *ddqn.Agent) *CheckpointStore {
	return &CheckpointStore{
		cfg:   cfg,
		agent: agent,
	}
}

// BestPath returns the path of the best-model bundle
func (s *CheckpointStore) BestPath() string {
	return filepath.Join(s.cfg.Path, s.cfg.BestName)
}

// SaveBest persists the agent as the new best model, rotating backups first
func (s *CheckpointStore) SaveBest() error {
	if !s.cfg.Enabled {
		return nil
	}
	if err := s.rotateBackups(); err != nil {
		logger.GetLogger().Warnf("Backup rotation failed: %v", err)
	}
	return s.agent.Save(s.BestPath())
}

// SaveEpisode persists a fixed-interval checkpoint for the given episode
func (s *CheckpointStore) SaveEpisode(episode int) error {
	if !s.cfg.Enabled {
		return nil
	}
	name := fmt.Sprintf("ddqn_ep%d.json", episode)
	return s.agent.Save(filepath.Join(s.cfg.Path, name))
}

// LoadBest restores the best-model bundle into the agent. A missing or
// incompatible bundle is not fatal: the agent keeps its random init and the
// caller proceeds with a warning.
func (s *CheckpointStore) LoadBest() error {
	path := s.BestPath()
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("checkpoint not found: %s", path)
	}
	return s.agent.Load(path)
}

// Run periodically saves the latest state until the context is cancelled.
// On cancellation a final save is performed when configured.
func (s *CheckpointStore) Run(ctx context.Context) {
	if !s.cfg.Enabled || s.cfg.SaveInterval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(s.cfg.SaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.agent.Save(s.latestPath()); err != nil {
				logger.GetLogger().Errorf("Periodic checkpoint save failed: %v", err)
			}
		case <-ctx.Done():
			if s.cfg.SaveOnShutdown {
				if err := s.agent.Save(s.latestPath()); err != nil {
					logger.GetLogger().Errorf("Shutdown checkpoint save failed: %v", err)
				} else {
					logger.GetLogger().Info("Checkpoint saved on shutdown")
				}
			}
			return
		}
	}
}

func (s *CheckpointStore) latestPath() string {
	return filepath.Join(s.cfg.Path, "ddqn_latest.json")
}

// rotateBackups shifts best.json into numbered backups, keeping BackupCount
func (s *CheckpointStore) rotateBackups() error {
	if s.cfg.BackupCount <= 0 {
		return nil
	}
	best := s.BestPath()
	if _, err := os.Stat(best); err != nil {
		return nil // nothing to rotate
	}

	for i := s.cfg.BackupCount - 1; i >= 1; i-- {
		from := fmt.Sprintf("%s.%d", best, i)
		to := fmt.Sprintf("%s.%d", best, i+1)
		if _, err := os.Stat(from); err == nil {
			if err := os.Rename(from, to); err != nil {
				return err
			}
		}
	}
	return os.Rename(best, best+".1")
}

// ListCheckpoints returns the checkpoint filenames in the store, newest last
func (s *CheckpointStore) ListCheckpoints() ([]string, error) {
	entries, err := os.ReadDir(s.cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
