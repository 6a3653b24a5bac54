// File: cmd/drain.go
package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/resonance/internal/observability"
)

func newDrainCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Evaluate due outcomes once and print the summary",
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

			if limit <= 0 {
				limit = cfg.Scheduler().DrainLimit
			}
			if err := components.Aggregator.Load(ctx); err != nil {
				observability.GetLogger().Warn("Failed to load patterns before drain", zap.Error(err))
			}
			res, err := components.Scheduler.DrainDue(ctx, limit, components.Platform)
			if err != nil {
				return err
			}
			return writeJSON(cmd, res)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum records to evaluate (default scheduler.drain_limit)")
	return cmd
}
