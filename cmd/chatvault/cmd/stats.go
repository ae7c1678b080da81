package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chatvault/chatvault/internal/store"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store.Open(cfg.DatabasePath())
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer s.Close()

		stats, err := s.GetStats()
		if err != nil {
			return fmt.Errorf("get stats: %w", err)
		}

		fmt.Printf("Database: %s\n", cfg.DatabasePath())
		printStats(stats)

		sources, err := s.ListSources()
		if err != nil {
			return fmt.Errorf("list sources: %w", err)
		}
		if len(sources) > 0 {
			fmt.Println("\nSources:")
			for _, src := range sources {
				count, err := s.CountMessagesForSource(src.ID)
				if err != nil {
					return fmt.Errorf("count messages: %w", err)
				}
				fmt.Printf("  [%d] %s (%s): %d messages\n", src.ID, src.Identifier, src.SourceType, count)
			}
		}
		return nil
	},
}

func printStats(stats *store.Stats) {
	fmt.Printf("  Messages:    %d\n", stats.MessageCount)
	fmt.Printf("  Chats:       %d\n", stats.ChatCount)
	fmt.Printf("  Attachments: %d\n", stats.AttachmentCount)
	fmt.Printf("  Sources:     %d\n", stats.SourceCount)
	fmt.Printf("  Imports:     %d\n", stats.ImportRunCount)
	fmt.Printf("  Size:        %.2f MB\n", float64(stats.DatabaseSize)/(1024*1024))
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
