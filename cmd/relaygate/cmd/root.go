// Package cmd provides the CLI commands for relaygate.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/relaygate/gateway/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "relaygate",
	Short: "relaygate - MCP aggregation gateway",
	Long: `relaygate is a multi-tenant reverse proxy that aggregates multiple
upstream MCP (Model Context Protocol) tool servers into one namespaced
catalog and dispatches tool invocations to them.

Quick start:
  1. Create a config file: relaygate.yaml
  2. Run: relaygate serve

Configuration:
  Config is loaded from relaygate.yaml in the current directory,
  $HOME/.relaygate/, or /etc/relaygate/.

  Environment variables can override config values with the RELAYGATE_ prefix.
  Example: RELAYGATE_SERVER_HTTP_ADDR=:9090

Commands:
  serve       Start the gateway's HTTP (and optional stdio) listener
  validate    Load and validate the configuration, then exit
  routes      Print the current aggregated tool catalog as a table
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./relaygate.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
