// File: cmd/run.go
package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/resonance/internal/observability"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the stimulus cycle and outcome poll until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			components, err := newComponentFactory().Create(ctx, cfg, true, logger)
			if err != nil {
				return err
			}
			defer components.Shutdown()

			if err := components.Agent.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
