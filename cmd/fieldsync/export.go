package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fieldops/fieldsync"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export queue entries as JSON Lines",
	Long: `Export queue entries as JSON Lines, to a file or stdout.

The usual workflow is exporting quarantined entries so an operator can
repair their payloads out-of-band and re-import them:

  fieldsync export --status failed quarantine.jsonl
  # fix the payloads in quarantine.jsonl
  fieldsync import --requeue quarantine.jsonl`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExport,
}

var exportStatus string

func init() {
	exportCmd.Flags().StringVar(&exportStatus, "status", "", "Only export entries in this status (pending, processing, completed, failed)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	if cfg.DatabaseURL != "" {
		return fmt.Errorf("export works on the local queue database only")
	}

	store, err := fieldsync.NewStore(cfg.LocalPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	if len(args) == 1 {
		f, err := os.Create(args[0])
		if err != nil {
			return fmt.Errorf("create export file: %w", err)
		}
		defer f.Close()
		out = f
	}

	count, err := store.ExportJSONL(context.Background(), fieldsync.Status(exportStatus), out)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	if len(args) == 1 {
		printSuccess(cmd.OutOrStdout(), "Exported %d entries to %s", count, args[0])
	}
	return nil
}
