package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/urbangrammar/demoland-assistant/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "demoland",
	Short: "Conversational assistant for DemoLand land-use scenarios",
	Long:  "Loads spatial signature, region and deprivation layers plus a modelled scenario, and answers questions about it through tools exposed to a language model, an HTTP API and MCP clients.",
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
