package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/maps-harvest/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "maps-harvest",
	Short: "Harvest business listings from map search results",
	Long:  "Extracts business records from a map results page in a controlled browser, enriches them with contact details mined from each business website, and exports the table as TSV, CSV or XLSX.",
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
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
