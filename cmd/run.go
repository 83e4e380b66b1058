package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/hh-checkpoint/internal/acquisition"
	"github.com/spigell/hh-checkpoint/internal/identity"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch new vacancies for the stored queries and evaluate every new one once",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringSliceP("query", "q", nil, "run only these queries instead of the stored ones")
	runCmd.Flags().Int("max-pages", 0, "override acquisition.max-pages")
	runCmd.Flags().Int("workers", 0, "override acquisition.workers")
}

func run(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := setup(ctx)
	defer a.Close()

	coordinator, err := a.coordinator(ctx)
	if err != nil {
		a.logger.Fatal("preparing acquisition", zap.Error(err))
	}

	cfg := a.config.Acquisition.Coordinator()
	if n, _ := cmd.Flags().GetInt("max-pages"); n > 0 {
		cfg.MaxPages = n
	}
	if n, _ := cmd.Flags().GetInt("workers"); n > 0 {
		cfg.Workers = n
	}

	var summaries []acquisition.RunSummary
	if explicit, _ := cmd.Flags().GetStringSlice("query"); len(explicit) > 0 {
		keys := make([]identity.QueryKey, 0, len(explicit))
		for _, q := range explicit {
			keys = append(keys, identity.QueryKey(q))
		}
		summaries, err = coordinator.RunAll(ctx, keys, cfg, a.profile)
	} else {
		summaries, err = runStored(ctx, a, coordinator, cfg)
	}

	printJSON(summaries)

	if err != nil {
		a.logger.Fatal("acquisition stopped", zap.Error(err))
	}
}

// runStored runs every stored query, applying per-query page limits.
func runStored(ctx context.Context, a *application, coordinator *acquisition.Coordinator, cfg acquisition.Config) ([]acquisition.RunSummary, error) {
	list, err := a.queries().Load()
	if err != nil {
		return nil, err
	}

	if len(list.Queries) == 0 {
		a.logger.Info("exiting", zap.String("reason", "no stored queries"), zap.String("file", a.queries().Path()))
		return nil, nil
	}

	a.logger.Info("running stored queries", zap.Any("queries", list.Keys()))

	summaries := make([]acquisition.RunSummary, 0, len(list.Queries))
	for _, q := range list.Queries {
		queryCfg := cfg
		if q.MaxPages > 0 {
			queryCfg.MaxPages = q.MaxPages
		}

		summary, err := coordinator.Run(ctx, q.Key(), queryCfg, a.profile)
		summaries = append(summaries, summary)
		if err != nil {
			return summaries, fmt.Errorf("query %q: %w", q.Text, err)
		}

		if summary.StopReason == acquisition.StopCancelled {
			break
		}
	}

	return summaries, nil
}
