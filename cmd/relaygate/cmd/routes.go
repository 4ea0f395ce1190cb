package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/relaygate/gateway/internal/config"
	"github.com/relaygate/gateway/internal/wiring"
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Print the current aggregated tool catalog as a table",
	Long:  `routes loads the configuration, probes every configured upstream once, and prints the resulting namespaced tool catalog.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger := newLogger(cfg.Server.LogLevel)
		rt, err := wiring.Build(cfg, logger)
		if err != nil {
			return fmt.Errorf("build runtime: %w", err)
		}

		ctx := ensureContext(cmd.Context())
		snapshot, err := rt.Aggregator.Rebuild(ctx)
		if err != nil {
			return fmt.Errorf("catalog build: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TOOL\tUPSTREAM\tUPSTREAM TOOL\tHEALTHY")
		for name, td := range snapshot.ToolsByExternalName {
			healthy := snapshot.IsUpstreamHealthy(td.UpstreamName)
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", name, td.UpstreamName, td.UpstreamToolName, healthy)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		if conflicts := rt.Aggregator.LastConflicts(); len(conflicts) > 0 {
			fmt.Fprintln(os.Stderr, "namespace conflicts:")
			for _, c := range conflicts {
				fmt.Fprintln(os.Stderr, "  "+c)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(routesCmd)
}
