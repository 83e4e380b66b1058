package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run all stored queries on the watch.schedule cron expression",
	Run: func(cmd *cobra.Command, _ []string) {
		watch(cmd)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().Bool("now", false, "also run once right after start")
}

func watch(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := setup(ctx)
	defer a.Close()

	coordinator, err := a.coordinator(ctx)
	if err != nil {
		a.logger.Fatal("preparing acquisition", zap.Error(err))
	}

	tick := func() {
		summaries, err := runStored(ctx, a, coordinator, a.config.Acquisition.Coordinator())
		for _, s := range summaries {
			a.logger.Info("run finished",
				zap.String("run_id", s.RunID),
				zap.String("query_key", s.Query),
				zap.String("stop_reason", string(s.StopReason)),
				zap.Int("new_evaluated", s.NewEvaluated),
				zap.Int("failed", s.Failed),
			)
		}
		if err != nil {
			a.logger.Error("scheduled run failed", zap.Error(err))
		}
	}

	// Runs never overlap.
	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := scheduler.AddFunc(a.config.Watch.Schedule, tick); err != nil {
		a.logger.Fatal("scheduling runs", zap.Error(err))
	}

	if now, _ := cmd.Flags().GetBool("now"); now {
		tick()
	}

	scheduler.Start()
	a.logger.Info("watching", zap.String("schedule", a.config.Watch.Schedule))

	<-ctx.Done()

	a.logger.Info("stopping the scheduler")
	<-scheduler.Stop().Done()
}
