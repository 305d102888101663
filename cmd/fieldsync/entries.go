package main

import (
	"fmt"

	"github.com/fieldops/fieldsync"
	"github.com/spf13/cobra"
)

var entriesCmd = &cobra.Command{
	Use:   "entries <entity-type> <entity-id>",
	Short: "Show the queue history for one record",
	Long: `Show all queue entries targeting one record, newest-first.

Useful for tracing what happened to a change: queued, synced, failed
or quarantined.

Example:
  fieldsync entries case case-42
  fieldsync entries person person-7 --json`,
	Args: cobra.ExactArgs(2),
	RunE: runEntries,
}

var entriesDelete string

func init() {
	entriesCmd.Flags().StringVar(&entriesDelete, "delete", "", "Delete the entry with this id after out-of-band resolution")
}

func runEntries(cmd *cobra.Command, args []string) error {
	entityType := fieldsync.EntityType(args[0])
	if !entityType.IsValid() {
		return fmt.Errorf("unknown entity type %q", args[0])
	}

	client, err := newClient(loadConfig())
	if err != nil {
		return fmt.Errorf("initialize client: %w", err)
	}
	defer client.Close()

	if entriesDelete != "" {
		if err := client.DeleteEntry(entriesDelete); err != nil {
			return fmt.Errorf("delete entry: %w", err)
		}
		printSuccess(cmd.OutOrStdout(), "Deleted entry %s", entriesDelete)
	}

	entries, err := client.EntriesByEntity(entityType, args[1])
	if err != nil {
		return fmt.Errorf("list entries: %w", err)
	}

	return outputEntryList(cmd, entries)
}
