package cmd

import (
	"github.com/spf13/cobra"

	"github.com/appyard/appyard/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "appyard",
	Short: "Appyard - local web app orchestrator",
	Long: `Appyard runs generated web apps on your machine: it assigns each app a
stable frontend/backend port pair, starts and stops the app processes,
and keeps an eye on whether they are still serving.`,
}

func Execute() error {
	// Silence usage and errors to avoid cluttering output with Cobra defaults
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/appyard/config.yaml)")
}

func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}
