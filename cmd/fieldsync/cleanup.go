package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Purge old completed queue entries",
	Long: `Purge completed entries older than the retention window. Pending and
failed entries are never purged, however old they are.

Example:
  fieldsync cleanup
  fieldsync cleanup --older-than-days 30`,
	RunE: runCleanup,
}

var cleanupOlderThanDays int

func init() {
	cleanupCmd.Flags().IntVar(&cleanupOlderThanDays, "older-than-days", 0, "Retention window in days (0 = configured default)")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	client, err := newClient(loadConfig())
	if err != nil {
		return fmt.Errorf("initialize client: %w", err)
	}
	defer client.Close()

	deleted, err := client.CleanupOldEntries(cleanupOlderThanDays)
	if err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}

	if outputJSON {
		return outputAsJSON(cmd, map[string]int{"deleted": deleted})
	}

	printSuccess(cmd.OutOrStdout(), "Purged %d completed entries", deleted)
	return nil
}
