package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/kilianp07/provision/app"
)

var precomputeCmd = &cobra.Command{
	Use:   "precompute",
	Short: "Rebuild the aggregates of every block, municipality and district",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withService(func(ctx context.Context, svc *app.Service) error {
			rep, err := svc.Precompute(ctx)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), rep)
		})
	},
}

func init() {
	rootCmd.AddCommand(precomputeCmd)
}
