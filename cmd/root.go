package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/phototrack/phototrack/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "phototrack",
	Short: "GPS tracks from geotagged photos",
	Long:  "Generates GPX tracks from the GPS positions embedded in photos, reverse-geocoding each point, and synchronizes track locations back onto photo metadata.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
