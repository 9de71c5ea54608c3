package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kilianp07/provision/app"
	"github.com/kilianp07/provision/core/model"
	"github.com/kilianp07/provision/core/provision"
)

type aggregateFlags struct {
	level     string
	target    string
	group     string
	situation string
	service   string
	debug     bool
	all       bool
}

var aggFlags aggregateFlags

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Compute the provision score of a territorial unit",
	Example: `  provision aggregate --level block --target 12
  provision aggregate --level municipality --target "North" --service pharmacy --debug
  provision aggregate --level district --all`,
	RunE: runAggregate,
}

func init() {
	f := aggregateCmd.Flags()
	f.StringVar(&aggFlags.level, "level", "block", "unit level (block, municipality, district)")
	f.StringVar(&aggFlags.target, "target", "", "unit id or name")
	f.StringVar(&aggFlags.group, "group", "", "restrict to a social group")
	f.StringVar(&aggFlags.situation, "situation", "", "restrict to a living situation")
	f.StringVar(&aggFlags.service, "service", "", "restrict to a service type")
	f.BoolVar(&aggFlags.debug, "debug", false, "include the per-triple trace")
	f.BoolVar(&aggFlags.all, "all", false, "score every unit of the level")
	rootCmd.AddCommand(aggregateCmd)
}

func runAggregate(cmd *cobra.Command, _ []string) error {
	q, level, err := aggFlags.query()
	if err != nil {
		return err
	}
	return withService(func(ctx context.Context, svc *app.Service) error {
		if aggFlags.all {
			res, err := svc.AggregateLevel(ctx, level, q)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		}
		res, err := svc.Aggregate(ctx, q)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), res)
	})
}

// query validates the flags before any connection is opened.
func (f aggregateFlags) query() (provision.Query, model.Level, error) {
	level, err := model.ParseLevel(f.level)
	if err != nil {
		return provision.Query{}, 0, err
	}
	q := provision.Query{
		Target:          provision.Target{Level: level},
		SocialGroup:     f.group,
		LivingSituation: f.situation,
		ServiceType:     f.service,
		Debug:           f.debug,
	}
	switch {
	case f.all && f.target != "":
		return q, level, fmt.Errorf("--target and --all are mutually exclusive")
	case f.all:
	case f.target == "":
		return q, level, fmt.Errorf("--target is required")
	default:
		if id, err := strconv.ParseInt(f.target, 10, 64); err == nil {
			q.Target.ID = id
		} else {
			q.Target.Name = f.target
		}
	}
	return q, level, nil
}
