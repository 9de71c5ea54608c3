package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/kilianp07/provision/app"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Serve metrics and process invalidations received over MQTT",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withService(func(ctx context.Context, svc *app.Service) error {
			return svc.Run(ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(listenCmd)
}
