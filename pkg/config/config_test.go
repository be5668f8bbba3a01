package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(wd) })

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, time.Second, cfg.Controller.PollInterval)
	assert.Equal(t, 2*time.Second, cfg.Controller.DecisionInterval)
	assert.Equal(t, 5*time.Second, cfg.Controller.RuleTimeout)
	assert.Equal(t, 8, cfg.Agent.StateDim)
	assert.Equal(t, 3, cfg.Agent.ActionDim)
	assert.Equal(t, []int{128, 128, 64}, cfg.Agent.HiddenLayers)
	assert.Equal(t, 0.99, cfg.Agent.Gamma)
	assert.Equal(t, []int{1, 2}, cfg.Classes.WorkPorts)
	assert.Equal(t, []int{3, 4}, cfg.Classes.EntertainPorts)
	assert.Equal(t, 0, cfg.Classes.Queues.WorkPriority.Work)
	assert.Equal(t, 2, cfg.Classes.Queues.WorkPriority.Entertain)
	assert.Equal(t, 1, cfg.Classes.Queues.Balanced.Work)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
controller:
  decision_interval: 4s
  rule_timeout: 9s
agent:
  batch_size: 32
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4*time.Second, cfg.Controller.DecisionInterval)
	assert.Equal(t, 9*time.Second, cfg.Controller.RuleTimeout)
	assert.Equal(t, 32, cfg.Agent.BatchSize)
	// Untouched keys keep their defaults
	assert.Equal(t, time.Second, cfg.Controller.PollInterval)
}

func TestWatch_ReloadsOnFileChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: info
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "info", cfg.Logging.Level)

	reloaded := make(chan *Config, 1)
	cfg.Watch(func(updated *Config, err error) {
		if err == nil {
			select {
			case reloaded <- updated:
			default:
			}
		}
	})

	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: debug
`), 0o644))

	select {
	case updated := <-reloaded:
		assert.Equal(t, "debug", updated.Logging.Level)
	case <-time.After(5 * time.Second):
		t.Fatal("config change was not observed")
	}
}

func TestWatch_InvalidEditReportsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
controller:
  decision_interval: 2s
  rule_timeout: 5s
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	errs := make(chan error, 1)
	cfg.Watch(func(_ *Config, err error) {
		if err != nil {
			select {
			case errs <- err:
			default:
			}
		}
	})

	// The rule timeout must outlive the decision interval
	require.NoError(t, os.WriteFile(path, []byte(`
controller:
  decision_interval: 5s
  rule_timeout: 2s
`), 0o644))

	select {
	case err := <-errs:
		assert.Contains(t, err.Error(), "rule timeout")
	case <-time.After(5 * time.Second):
		t.Fatal("invalid config change was not reported")
	}
}

func TestLoad_MissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate_RuleTimeoutShorterThanDecisionInterval(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
controller:
  decision_interval: 5s
  rule_timeout: 2s
`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rule timeout")
}

func TestValidate_RejectsOverlappingClassPorts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
classes:
  work_ports: [1, 2]
  entertain_ports: [2, 3]
`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "both traffic classes")
}

func TestValidate_AgentRanges(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"gamma above one", "agent:\n  gamma: 1.5\n"},
		{"negative epsilon", "agent:\n  epsilon_start: -0.1\n"},
		{"epsilon end above start", "agent:\n  epsilon_start: 0.5\n  epsilon_end: 0.9\n"},
		{"zero batch", "agent:\n  batch_size: 0\n"},
		{"memory below batch", "agent:\n  batch_size: 64\n  memory_size: 10\n"},
		{"zero target freq", "agent:\n  target_update_freq: 0\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tc.yaml), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}
