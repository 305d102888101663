package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fieldops/fieldsync"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import queue entries from a JSON Lines export",
	Long: `Import queue entries from a JSON Lines export. Entries whose id
already exists are skipped.

With --requeue, imported entries re-enter the queue as pending with a
fresh retry budget - the path for repaired quarantined entries.

Example:
  fieldsync import backup.jsonl
  fieldsync import --requeue quarantine.jsonl`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var importRequeue bool

func init() {
	importCmd.Flags().BoolVar(&importRequeue, "requeue", false, "Reset imported entries to pending with zero attempts")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	if cfg.DatabaseURL != "" {
		return fmt.Errorf("import works on the local queue database only")
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open export file: %w", err)
	}
	defer f.Close()

	store, err := fieldsync.NewStore(cfg.LocalPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	result, err := store.ImportJSONL(context.Background(), f, importRequeue)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}

	if outputJSON {
		return outputAsJSON(cmd, result)
	}

	out := cmd.OutOrStdout()
	printSuccess(out, "Imported %d of %d entries (%d skipped)", result.Imported, result.Total, result.Skipped)
	for _, e := range result.Errors {
		printWarning(out, "%s", e)
	}
	return nil
}
