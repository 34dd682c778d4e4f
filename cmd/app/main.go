package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"NeuralTrade/pkg/config"
)

var configPath string

// rootCmd is the base command for the NeuralTrade CLI
var rootCmd = &cobra.Command{
	Use:   "neuraltrade",
	Short: "NeuralTrade signal engine",
	Long: `NeuralTrade turns OHLCV candle windows into LONG/SHORT/NEUTRAL trading
signals with ATR-based levels and an FMEA risk assessment.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "config file path")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return nil, fmt.Errorf("config load failed: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
