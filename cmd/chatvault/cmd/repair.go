package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chatvault/chatvault/internal/importer"
	"github.com/chatvault/chatvault/internal/store"
)

var repairSourcePath string

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Reconcile stale attachment-to-message links",
	Long: `Repair attachment records whose cached message id went stale after a
forced reimport assigned new internal ids. Linkage is re-derived from the
stable source GUID, falling back to the source database's filename
mapping. Metadata only; stored files are never touched. Safe to run at
any time.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sourcePath := repairSourcePath
		if sourcePath == "" {
			sourcePath = cfg.Import.SourcePath
		}

		s, err := store.Open(cfg.DatabasePath())
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer s.Close()

		imp := importer.NewImporter(s, nil, logger)
		summary, err := imp.Repair(cmd.Context(), sourcePath)
		if err != nil {
			return fmt.Errorf("repair failed: %w", err)
		}

		fmt.Printf("Checked:  %d attachment records\n", summary.Checked)
		fmt.Printf("Repaired: %d\n", summary.Repaired)
		if summary.Orphaned > 0 {
			fmt.Printf("Orphaned: %d (no matching message; records kept)\n", summary.Orphaned)
		}
		return nil
	},
}

func init() {
	repairCmd.Flags().StringVar(&repairSourcePath, "source", "", "path to chat.db (default from config)")
	rootCmd.AddCommand(repairCmd)
}
