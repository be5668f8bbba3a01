package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/pkg/config"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/pkg/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "qosd",
	Short: "Adaptive QoS bandwidth allocation controller",
	Long: "qosd manages bandwidth between work and entertainment traffic classes\n" +
		"on connected network devices, driven by a Double DQN policy trained\n" +
		"against a simulated network.",
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(trainCmd)
}

// loadConfig loads and validates configuration, then brings up logging
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger.Initialize(&cfg.Logging)
	return cfg, nil
}
