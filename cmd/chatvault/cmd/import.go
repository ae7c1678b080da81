package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/chatvault/chatvault/internal/importer"
	"github.com/chatvault/chatvault/internal/store"
)

var (
	importSourcePath  string
	importForce       bool
	importDisplayName string
	importSkipMedia   bool
)

var importCmd = &cobra.Command{
	Use:   "import [chat.db path]",
	Short: "Import messages from an Apple Messages database",
	Long: `Import messages from an Apple Messages chat.db.

The source database is opened read-only. Messages already in the vault
(matched by GUID) are skipped, so re-running an import is cheap and safe.
Attachments are copied into content-addressed storage under the data
directory.

Examples:
  chatvault import
  chatvault import ~/Library/Messages/chat.db
  chatvault import --force /backups/2024/chat.db`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sourcePath := importSourcePath
		if len(args) == 1 {
			sourcePath = args[0]
		}
		if sourcePath == "" {
			sourcePath = cfg.Import.SourcePath
		}
		if sourcePath != "" {
			if _, err := os.Stat(sourcePath); err != nil {
				return fmt.Errorf("source database not found: %w", err)
			}
		}

		s, err := store.Open(cfg.DatabasePath())
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer s.Close()

		if err := s.InitSchema(); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}

		opts := importOptions(sourcePath)
		opts.Force = importForce
		opts.DisplayName = importDisplayName
		if importSkipMedia {
			opts.AttachmentsDir = ""
		}

		progress := &cliProgress{}
		imp := importer.NewImporter(s, progress, logger)

		fmt.Printf("Importing messages from %s\n", sourcePath)
		if importForce {
			fmt.Println("Force reimport: existing rows for this source will be replaced")
		}
		fmt.Println()

		summary, err := imp.Import(cmd.Context(), opts)
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}

		fmt.Println()
		if summary.Cancelled {
			fmt.Println("Import cancelled. Completed batches were kept; run again to continue.")
		} else {
			fmt.Println("Import complete!")
		}
		fmt.Printf("  Duration:     %s\n", summary.Duration.Round(time.Second))
		fmt.Printf("  Messages:     %d seen, %d stored, %d skipped\n",
			summary.MessagesSeen, summary.MessagesImported, summary.MessagesSkipped)
		fmt.Printf("  Attachments:  %d stored, %d skipped\n",
			summary.AttachmentsImported, summary.AttachmentsSkipped)
		if summary.ThreadsUnresolved > 0 {
			fmt.Printf("  No thread:    %d messages without chat linkage\n", summary.ThreadsUnresolved)
		}
		if summary.MessagesImported > 0 && summary.Duration.Seconds() >= 1 {
			rate := float64(summary.MessagesImported) / summary.Duration.Seconds()
			fmt.Printf("  Rate:         %.0f messages/sec\n", rate)
		}
		return nil
	},
}

// importOptions maps config tunables onto importer options.
func importOptions(sourcePath string) importer.Options {
	opts := importer.DefaultOptions()
	opts.SourcePath = sourcePath
	opts.AttachmentsDir = cfg.AttachmentsDir()
	opts.BatchSize = cfg.Import.BatchSize
	opts.DeleteBatchSize = cfg.Import.DeleteBatchSize
	opts.PageSizeFloor = cfg.Import.PageSizeFloor
	opts.MaxAttachmentBytes = cfg.Import.MaxAttachmentBytes
	opts.MaxStringLen = cfg.Import.MaxStringLen
	opts.LockTimeout = cfg.Import.LockTimeout()
	return opts
}

func init() {
	importCmd.Flags().StringVar(&importSourcePath, "source", "", "path to chat.db (default from config)")
	importCmd.Flags().BoolVar(&importForce, "force", false, "delete previously imported rows for this source first")
	importCmd.Flags().StringVar(&importDisplayName, "display-name", "", "display name for this source")
	importCmd.Flags().BoolVar(&importSkipMedia, "skip-media", false, "do not copy attachment files")
	rootCmd.AddCommand(importCmd)
}
