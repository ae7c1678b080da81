package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chatvault/chatvault/internal/importer"
	"github.com/chatvault/chatvault/internal/scheduler"
	"github.com/chatvault/chatvault/internal/store"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run scheduled imports from the config file",
	Long: `Run in the foreground and execute imports on the cron schedules
defined in the config file:

  [[schedule]]
  source_path = "/backups/work/chat.db"
  schedule = "0 3 * * *"
  enabled = true

Stops cleanly on SIGINT/SIGTERM, waiting for a running import to finish.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		schedules := cfg.ScheduledStores()
		if len(schedules) == 0 {
			return fmt.Errorf("no enabled schedules in config (%s)", cfg.HomeDir)
		}

		s, err := store.Open(cfg.DatabasePath())
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer s.Close()

		if err := s.InitSchema(); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}

		imp := importer.NewImporter(s, nil, logger)
		sched := scheduler.New(func(ctx context.Context, sourcePath string) error {
			opts := importOptions(sourcePath)
			_, err := imp.Import(ctx, opts)
			return err
		}).WithLogger(logger)

		scheduled, errs := sched.AddSourcesFromConfig(cfg)
		for _, err := range errs {
			logger.Error("skipping schedule", "error", err)
		}
		if scheduled == 0 {
			return fmt.Errorf("no valid schedules")
		}

		sched.Start()
		fmt.Printf("Scheduler running with %d source(s). Press Ctrl+C to stop.\n", scheduled)

		<-cmd.Context().Done()
		fmt.Println("\nStopping scheduler...")
		stopCtx := sched.Stop()
		<-stopCtx.Done()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}
