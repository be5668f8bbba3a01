package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds the application's configuration
type Config struct {
	Controller  Controller  `mapstructure:"controller"`
	Southbound  Southbound  `mapstructure:"southbound"`
	Agent       Agent       `mapstructure:"agent"`
	Training    Training    `mapstructure:"training"`
	Environment Environment `mapstructure:"environment"`
	Reward      Reward      `mapstructure:"reward"`
	Classes     Classes     `mapstructure:"classes"`
	Persistence Persistence `mapstructure:"persistence"`
	Logging     Logging     `mapstructure:"logging"`
	Metrics     Metrics     `mapstructure:"metrics"`
	Export      Export      `mapstructure:"export"`

	v *viper.Viper
}

// Controller contains live control loop settings
type Controller struct {
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	DecisionInterval time.Duration `mapstructure:"decision_interval"`
	RuleTimeout      time.Duration `mapstructure:"rule_timeout"`
	LatencyProxyMs   float64       `mapstructure:"latency_proxy_ms"`
	LatencyCeilingMs float64       `mapstructure:"latency_ceiling_ms"`
	TotalBandwidth   float64       `mapstructure:"total_bandwidth_mbps"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout"`
}

// Southbound contains the device-facing listener settings
type Southbound struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
}

// Agent contains the Double DQN settings
type Agent struct {
	StateDim          int     `mapstructure:"state_dim"`
	ActionDim         int     `mapstructure:"action_dim"`
	HiddenLayers      []int   `mapstructure:"hidden_layers"`
	BatchSize         int     `mapstructure:"batch_size"`
	Gamma             float64 `mapstructure:"gamma"`
	EpsilonStart      float64 `mapstructure:"epsilon_start"`
	EpsilonEnd        float64 `mapstructure:"epsilon_end"`
	EpsilonDecay      float64 `mapstructure:"epsilon_decay"`
	LearningRate      float64 `mapstructure:"learning_rate"`
	MemorySize        int     `mapstructure:"memory_size"`
	TargetUpdateFreq  int     `mapstructure:"target_update_freq"`
	GradClipNorm      float64 `mapstructure:"grad_clip_norm"`
	PrioritizedReplay bool    `mapstructure:"prioritized_replay"`
	PriorityAlpha     float64 `mapstructure:"priority_alpha"`
	PriorityBeta      float64 `mapstructure:"priority_beta"`
}

// Training contains offline trainer settings
type Training struct {
	Episodes           int `mapstructure:"episodes"`
	MaxSteps           int `mapstructure:"max_steps"`
	CheckpointInterval int `mapstructure:"checkpoint_interval"`
	ReportInterval     int `mapstructure:"report_interval"`
}

// Environment contains the simulated network settings
type Environment struct {
	TotalBandwidth      float64 `mapstructure:"total_bandwidth_mbps"`
	BaseWorkDemand      float64 `mapstructure:"base_work_demand_mbps"`
	BaseEntertainDemand float64 `mapstructure:"base_entertain_demand_mbps"`
	BaseLatencyMs       float64 `mapstructure:"base_latency_ms"`
	DemandNoise         float64 `mapstructure:"demand_noise_mbps"`
	DriftNoise          float64 `mapstructure:"drift_noise_mbps"`
	MaxSteps            int     `mapstructure:"max_steps"`
}

// Reward contains the reward shaping constants. The thresholds are
// empirically chosen and deliberately tunable rather than hard-coded.
type Reward struct {
	GoodBandwidthMbps  float64 `mapstructure:"good_bandwidth_mbps"`
	FairBandwidthMbps  float64 `mapstructure:"fair_bandwidth_mbps"`
	PoorBandwidthMbps  float64 `mapstructure:"poor_bandwidth_mbps"`
	StarvedMbps        float64 `mapstructure:"starved_mbps"`
	GoodLatencyMs      float64 `mapstructure:"good_latency_ms"`
	PoorLatencyMs      float64 `mapstructure:"poor_latency_ms"`
	LatencyPenaltyMs   float64 `mapstructure:"latency_penalty_ms"`
	GoodServiceBonus   float64 `mapstructure:"good_service_bonus"`
	FairServiceBonus   float64 `mapstructure:"fair_service_bonus"`
	BalancedBonus      float64 `mapstructure:"balanced_bonus"`
	BalancedLowMbps    float64 `mapstructure:"balanced_low_mbps"`
	BalancedHighMbps   float64 `mapstructure:"balanced_high_mbps"`
	ImbalanceGapMbps   float64 `mapstructure:"imbalance_gap_mbps"`
	PoorServicePenalty float64 `mapstructure:"poor_service_penalty"`
	StarvationPenalty  float64 `mapstructure:"starvation_penalty"`
	ImbalancePenalty   float64 `mapstructure:"imbalance_penalty"`
	UtilizationWeight  float64 `mapstructure:"utilization_weight"`
	LossWeight         float64 `mapstructure:"loss_weight"`
	LatencyWeight      float64 `mapstructure:"latency_weight"`
	TimeBonus          float64 `mapstructure:"time_bonus"`
	FairnessPenalty    float64 `mapstructure:"fairness_penalty"`
	FairnessFloorMbps  float64 `mapstructure:"fairness_floor_mbps"`
}

// Classes maps traffic classes to switch ports and actions to queues
type Classes struct {
	WorkPorts      []int        `mapstructure:"work_ports"`
	EntertainPorts []int        `mapstructure:"entertain_ports"`
	Queues         QueueMapping `mapstructure:"queues"`
}

// QueueMapping holds per-action queue assignments for both classes
type QueueMapping struct {
	WorkPriority      QueuePair `mapstructure:"work_priority"`
	Balanced          QueuePair `mapstructure:"balanced"`
	EntertainPriority QueuePair `mapstructure:"entertain_priority"`
}

// QueuePair is one action's queue ids for the two classes
type QueuePair struct {
	Work      int `mapstructure:"work"`
	Entertain int `mapstructure:"entertain"`
}

// Persistence contains checkpoint storage settings
type Persistence struct {
	Enabled        bool          `mapstructure:"enabled"`
	Path           string        `mapstructure:"path"`
	BestName       string        `mapstructure:"best_name"`
	SaveOnShutdown bool          `mapstructure:"save_on_shutdown"`
	SaveInterval   time.Duration `mapstructure:"save_interval"`
	BackupCount    int           `mapstructure:"backup_count"`
}

// Logging contains logging settings
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// Metrics contains the metrics HTTP endpoint settings
type Metrics struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// Export contains the CSV metrics trace settings
type Export struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/qosd/")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("QOS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	cfg.v = v
	return &cfg, nil
}

// Watch re-reads the configuration whenever the file changes and hands the
// validated result to callback. On an invalid edit the callback receives the
// error and the previous configuration stays in effect.
func (c *Config) Watch(callback func(*Config, error)) {
	c.v.WatchConfig()
	c.v.OnConfigChange(func(e fsnotify.Event) {
		var cfg Config
		if err := c.v.Unmarshal(&cfg); err != nil {
			callback(nil, fmt.Errorf("failed to reload config: %w", err))
			return
		}
		if err := cfg.Validate(); err != nil {
			callback(nil, err)
			return
		}
		cfg.v = c.v
		callback(&cfg, nil)
	})
}

func setDefaults(v *viper.Viper) {
	// Controller defaults
	v.SetDefault("controller.poll_interval", "1s")
	v.SetDefault("controller.decision_interval", "2s")
	v.SetDefault("controller.rule_timeout", "5s")
	v.SetDefault("controller.latency_proxy_ms", 10.0)
	v.SetDefault("controller.latency_ceiling_ms", 100.0)
	v.SetDefault("controller.total_bandwidth_mbps", 100.0)
	v.SetDefault("controller.shutdown_timeout", "10s")

	// Southbound defaults
	v.SetDefault("southbound.host", "0.0.0.0")
	v.SetDefault("southbound.port", 6653)
	v.SetDefault("southbound.write_timeout", "2s")
	v.SetDefault("southbound.read_timeout", "30s")

	// Agent defaults
	v.SetDefault("agent.state_dim", 8)
	v.SetDefault("agent.action_dim", 3)
	v.SetDefault("agent.hidden_layers", []int{128, 128, 64})
	v.SetDefault("agent.batch_size", 64)
	v.SetDefault("agent.gamma", 0.99)
	v.SetDefault("agent.epsilon_start", 1.0)
	v.SetDefault("agent.epsilon_end", 0.01)
	v.SetDefault("agent.epsilon_decay", 0.995)
	v.SetDefault("agent.learning_rate", 0.0001)
	v.SetDefault("agent.memory_size", 100000)
	v.SetDefault("agent.target_update_freq", 10)
	v.SetDefault("agent.grad_clip_norm", 1.0)
	v.SetDefault("agent.prioritized_replay", false)
	v.SetDefault("agent.priority_alpha", 0.6)
	v.SetDefault("agent.priority_beta", 0.4)

	// Training defaults
	v.SetDefault("training.episodes", 1000)
	v.SetDefault("training.max_steps", 200)
	v.SetDefault("training.checkpoint_interval", 100)
	v.SetDefault("training.report_interval", 10)

	// Environment defaults
	v.SetDefault("environment.total_bandwidth_mbps", 100.0)
	v.SetDefault("environment.base_work_demand_mbps", 40.0)
	v.SetDefault("environment.base_entertain_demand_mbps", 30.0)
	v.SetDefault("environment.base_latency_ms", 10.0)
	v.SetDefault("environment.demand_noise_mbps", 5.0)
	v.SetDefault("environment.drift_noise_mbps", 3.0)
	v.SetDefault("environment.max_steps", 200)

	// Reward shaping defaults
	v.SetDefault("reward.good_bandwidth_mbps", 50.0)
	v.SetDefault("reward.fair_bandwidth_mbps", 40.0)
	v.SetDefault("reward.poor_bandwidth_mbps", 30.0)
	v.SetDefault("reward.starved_mbps", 15.0)
	v.SetDefault("reward.good_latency_ms", 20.0)
	v.SetDefault("reward.poor_latency_ms", 50.0)
	v.SetDefault("reward.latency_penalty_ms", 30.0)
	v.SetDefault("reward.good_service_bonus", 15.0)
	v.SetDefault("reward.fair_service_bonus", 10.0)
	v.SetDefault("reward.balanced_bonus", 12.0)
	v.SetDefault("reward.balanced_low_mbps", 35.0)
	v.SetDefault("reward.balanced_high_mbps", 65.0)
	v.SetDefault("reward.imbalance_gap_mbps", 30.0)
	v.SetDefault("reward.poor_service_penalty", 20.0)
	v.SetDefault("reward.starvation_penalty", 8.0)
	v.SetDefault("reward.imbalance_penalty", 10.0)
	v.SetDefault("reward.utilization_weight", 3.0)
	v.SetDefault("reward.loss_weight", 15.0)
	v.SetDefault("reward.latency_weight", 0.2)
	v.SetDefault("reward.time_bonus", 5.0)
	v.SetDefault("reward.fairness_penalty", 3.0)
	v.SetDefault("reward.fairness_floor_mbps", 10.0)

	// Class membership and queue mapping defaults
	v.SetDefault("classes.work_ports", []int{1, 2})
	v.SetDefault("classes.entertain_ports", []int{3, 4})
	v.SetDefault("classes.queues.work_priority.work", 0)
	v.SetDefault("classes.queues.work_priority.entertain", 2)
	v.SetDefault("classes.queues.balanced.work", 1)
	v.SetDefault("classes.queues.balanced.entertain", 1)
	v.SetDefault("classes.queues.entertain_priority.work", 2)
	v.SetDefault("classes.queues.entertain_priority.entertain", 0)

	// Persistence defaults
	v.SetDefault("persistence.enabled", true)
	v.SetDefault("persistence.path", "./data/models")
	v.SetDefault("persistence.best_name", "ddqn_best.json")
	v.SetDefault("persistence.save_on_shutdown", true)
	v.SetDefault("persistence.save_interval", "10m")
	v.SetDefault("persistence.backup_count", 3)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")

	// Export defaults
	v.SetDefault("export.enabled", true)
	v.SetDefault("export.path", "./data/network_traces/live_metrics.csv")
}

// Validate checks the loaded configuration for out-of-range values
func (c *Config) Validate() error {
	if c.Southbound.Port <= 0 || c.Southbound.Port > 65535 {
		return fmt.Errorf("invalid southbound port: %d", c.Southbound.Port)
	}
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return fmt.Errorf("invalid metrics port: %d", c.Metrics.Port)
	}

	if c.Controller.PollInterval <= 0 {
		return fmt.Errorf("invalid poll interval: %v", c.Controller.PollInterval)
	}
	if c.Controller.DecisionInterval <= 0 {
		return fmt.Errorf("invalid decision interval: %v", c.Controller.DecisionInterval)
	}
	if c.Controller.RuleTimeout < c.Controller.DecisionInterval {
		return fmt.Errorf("rule timeout (%v) must not be shorter than the decision interval (%v)",
			c.Controller.RuleTimeout, c.Controller.DecisionInterval)
	}
	if c.Controller.LatencyCeilingMs <= 0 {
		return fmt.Errorf("invalid latency ceiling: %f ms", c.Controller.LatencyCeilingMs)
	}
	if c.Controller.TotalBandwidth <= 0 {
		return fmt.Errorf("invalid total bandwidth: %f Mbps", c.Controller.TotalBandwidth)
	}

	if err := c.Agent.validate(); err != nil {
		return err
	}

	if c.Training.Episodes <= 0 {
		return fmt.Errorf("invalid episode count: %d", c.Training.Episodes)
	}
	if c.Training.MaxSteps <= 0 {
		return fmt.Errorf("invalid max steps per episode: %d", c.Training.MaxSteps)
	}
	if c.Training.CheckpointInterval <= 0 {
		return fmt.Errorf("invalid checkpoint interval: %d", c.Training.CheckpointInterval)
	}

	if c.Environment.TotalBandwidth <= 0 {
		return fmt.Errorf("invalid environment bandwidth: %f Mbps", c.Environment.TotalBandwidth)
	}
	if c.Environment.MaxSteps <= 0 {
		return fmt.Errorf("invalid environment max steps: %d", c.Environment.MaxSteps)
	}

	if len(c.Classes.WorkPorts) == 0 || len(c.Classes.EntertainPorts) == 0 {
		return fmt.Errorf("both traffic classes need at least one port")
	}
	seen := make(map[int]bool)
	for _, p := range c.Classes.WorkPorts {
		if p <= 0 {
			return fmt.Errorf("invalid work class port: %d", p)
		}
		seen[p] = true
	}
	for _, p := range c.Classes.EntertainPorts {
		if p <= 0 {
			return fmt.Errorf("invalid entertain class port: %d", p)
		}
		if seen[p] {
			return fmt.Errorf("port %d assigned to both traffic classes", p)
		}
	}

	if c.Persistence.Enabled {
		if c.Persistence.Path == "" {
			return fmt.Errorf("persistence path must be set when persistence is enabled")
		}
		if c.Persistence.BackupCount < 0 {
			return fmt.Errorf("invalid backup count: %d", c.Persistence.BackupCount)
		}
	}

	return nil
}

func (a *Agent) validate() error {
	if a.StateDim <= 0 {
		return fmt.Errorf("invalid state dimension: %d", a.StateDim)
	}
	if a.ActionDim <= 0 {
		return fmt.Errorf("invalid action dimension: %d", a.ActionDim)
	}
	for i, h := range a.HiddenLayers {
		if h <= 0 {
			return fmt.Errorf("invalid hidden layer %d size: %d", i, h)
		}
	}
	if a.BatchSize <= 0 {
		return fmt.Errorf("invalid batch size: %d", a.BatchSize)
	}
	if a.Gamma <= 0 || a.Gamma > 1 {
		return fmt.Errorf("invalid discount factor: %f", a.Gamma)
	}
	if a.EpsilonStart < 0 || a.EpsilonStart > 1 {
		return fmt.Errorf("invalid epsilon start: %f", a.EpsilonStart)
	}
	if a.EpsilonEnd < 0 || a.EpsilonEnd > a.EpsilonStart {
		return fmt.Errorf("invalid epsilon end: %f", a.EpsilonEnd)
	}
	if a.EpsilonDecay <= 0 || a.EpsilonDecay > 1 {
		return fmt.Errorf("invalid epsilon decay: %f", a.EpsilonDecay)
	}
	if a.LearningRate <= 0 || a.LearningRate > 1 {
		return fmt.Errorf("invalid learning rate: %f", a.LearningRate)
	}
	if a.MemorySize < a.BatchSize {
		return fmt.Errorf("memory size (%d) must be at least the batch size (%d)", a.MemorySize, a.BatchSize)
	}
	if a.TargetUpdateFreq <= 0 {
		return fmt.Errorf("invalid target update frequency: %d", a.TargetUpdateFreq)
	}
	if a.GradClipNorm <= 0 {
		return fmt.Errorf("invalid gradient clip norm: %f", a.GradClipNorm)
	}
	if a.PrioritizedReplay {
		if a.PriorityAlpha < 0 || a.PriorityAlpha > 1 {
			return fmt.Errorf("invalid priority alpha: %f", a.PriorityAlpha)
		}
		if a.PriorityBeta < 0 || a.PriorityBeta > 1 {
			return fmt.Errorf("invalid priority beta: %f", a.PriorityBeta)
		}
	}
	return nil
}
