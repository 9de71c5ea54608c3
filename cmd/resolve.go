package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/kilianp07/provision/app"
	"github.com/kilianp07/provision/core/model"
)

var (
	resolveLat     float64
	resolveLon     float64
	resolveMinutes int
	resolveMode    string
	resolveStrict  bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Print the isochrone around a point as GeoJSON",
	RunE:  runResolve,
}

func init() {
	f := resolveCmd.Flags()
	f.Float64Var(&resolveLat, "lat", 0, "latitude of the origin")
	f.Float64Var(&resolveLon, "lon", 0, "longitude of the origin")
	f.IntVar(&resolveMinutes, "minutes", 10, "travel time budget in minutes")
	f.StringVar(&resolveMode, "mode", "walking", "travel mode (walking, transit, car)")
	f.BoolVar(&resolveStrict, "strict", false, "fail on timeouts and upstream errors instead of degrading")
	_ = resolveCmd.MarkFlagRequired("lat")
	_ = resolveCmd.MarkFlagRequired("lon")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, _ []string) error {
	mode, err := model.ParseMode(resolveMode)
	if err != nil {
		return err
	}
	return withService(func(ctx context.Context, svc *app.Service) error {
		g, err := svc.Resolve(ctx, resolveLat, resolveLon, resolveMinutes, mode, resolveStrict)
		if err != nil {
			return err
		}
		out, err := geojson.Marshal(g)
		if err != nil {
			return fmt.Errorf("encode geometry: %w", err)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return err
	})
}
