package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chatvault/chatvault/internal/store"
	"github.com/chatvault/chatvault/internal/textutil"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recent import runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store.Open(cfg.DatabasePath())
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer s.Close()

		sources, err := s.ListSources()
		if err != nil {
			return fmt.Errorf("list sources: %w", err)
		}
		if len(sources) == 0 {
			fmt.Println("No sources imported yet.")
			return nil
		}

		for _, src := range sources {
			runs, err := s.ListImportRuns(src.ID, runsLimit)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}
			fmt.Printf("%s (%s):\n", src.Identifier, src.SourceType)
			if len(runs) == 0 {
				fmt.Println("  no runs")
				continue
			}
			for _, r := range runs {
				line := fmt.Sprintf("  %s  %-10s  %d seen, %d stored, %d attachments",
					r.StartedAt.Format("2006-01-02 15:04:05"), r.Status,
					r.MessagesSeen, r.MessagesImported, r.AttachmentsImported)
				if r.Error.Valid && r.Error.String != "" {
					// Stored errors can be multi-line cause chains; the
					// first line is the summary.
					line += "  error: " + sanitizeTerminal(textutil.FirstLine(r.Error.String))
				}
				fmt.Println(line)
			}
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 10, "runs to show per source")
	rootCmd.AddCommand(runsCmd)
}
