package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relaygate/gateway/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate the configuration, then exit",
	Long:  `validate reads the configuration file and environment overrides, applies defaults, and runs struct validation, reporting any error without starting the gateway.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("configuration invalid: %w", err)
		}
		path := config.ConfigFileUsed()
		if path == "" {
			path = "(no config file found; using defaults and environment variables)"
		}
		fmt.Printf("configuration OK: %s\n", path)
		fmt.Printf("  listen:          %s\n", cfg.Server.HTTPAddr)
		fmt.Printf("  stdio enabled:   %t\n", cfg.Server.StdioEnabled)
		fmt.Printf("  upstreams:       %d\n", len(cfg.Upstreams))
		fmt.Printf("  deny by default: %t\n", cfg.DenyByDefault)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
