// File: cmd/patterns.go
package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/resonance/internal/observability"
)

func newPatternsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "List learned patterns with enough samples to act on",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			components, err := newComponentFactory().Create(ctx, cfg, false, observability.GetLogger())
			if err != nil {
				return err
			}
			defer components.Shutdown()

			if err := components.Aggregator.Load(ctx); err != nil {
				return fmt.Errorf("failed to load patterns: %w", err)
			}
			surfaced := components.Aggregator.Surfaced()
			if asJSON {
				return writeJSON(cmd, surfaced)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STATE\tDECISION\tCOUNT\tAVG SCORE\tSUCCESS RATE\tCONTINUE")
			for _, p := range surfaced {
				fmt.Fprintf(w, "%s\t%s\t%d\t%.3f\t%.2f\t%t\n", p.State, p.Decision, p.Count, p.AvgScore, p.SuccessRate, p.ShouldContinue)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}
