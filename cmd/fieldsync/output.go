package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fieldops/fieldsync"
	"github.com/spf13/cobra"
)

// outputAsJSON writes any value as formatted JSON to the command's stdout.
func outputAsJSON(cmd *cobra.Command, v interface{}) error {
	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputText prints text to the command's stdout.
func outputText(cmd *cobra.Command, format string, args ...interface{}) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, format, args...)
}

// outputError prints an error to stderr, ensuring no API keys are leaked.
func outputError(w io.Writer, err error) {
	msg := scrubSensitiveData(err.Error())
	fmt.Fprintf(w, "Error: %s\n", msg)
}

// scrubSensitiveData removes the configured API key from messages
// before they reach the terminal.
func scrubSensitiveData(msg string) string {
	if cfgAPIKey != "" && strings.Contains(msg, cfgAPIKey) {
		msg = strings.ReplaceAll(msg, cfgAPIKey, "[REDACTED]")
	}
	return msg
}

// outputEntry prints a newly queued entry in the configured format.
func outputEntry(cmd *cobra.Command, entry *fieldsync.SyncQueueEntry) error {
	if outputJSON {
		return outputAsJSON(cmd, entry)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Queued: %s\n", entry.ID)
	fmt.Fprintf(out, "Target: %s %s/%s\n", entry.Operation, entry.EntityType, entry.EntityID)
	fmt.Fprintf(out, "Status: %s\n", entry.Status)
	return nil
}

// outputDrainResult prints a drain result in the configured format.
func outputDrainResult(cmd *cobra.Command, result *fieldsync.DrainResult, duration time.Duration) error {
	if outputJSON {
		return outputAsJSON(cmd, result)
	}

	out := cmd.OutOrStdout()
	if result.Success {
		printSuccess(out, "Sync complete (took %s)", duration.Round(time.Millisecond))
	} else {
		printWarning(out, "Sync finished with failures (took %s)", duration.Round(time.Millisecond))
	}
	fmt.Fprintf(out, "  Synced: %d\n", result.Synced)
	fmt.Fprintf(out, "  Failed: %d\n", result.Failed)

	for _, e := range result.Errors {
		printError(out, "%s: %s", e.EntryID, e.Error)
	}
	return nil
}

// outputEntryList prints a queue entry list, newest-first.
func outputEntryList(cmd *cobra.Command, entries []fieldsync.SyncQueueEntry) error {
	if outputJSON {
		return outputAsJSON(cmd, entries)
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "No queue entries found.")
		return nil
	}

	fmt.Fprintf(out, "Found %d entries:\n\n", len(entries))
	for i, e := range entries {
		fmt.Fprintf(out, "[%s] %s %s/%s\n", e.ID, e.Operation, e.EntityType, e.EntityID)
		fmt.Fprintf(out, "    Status: %s  Attempts: %d  Queued: %s\n",
			e.Status, e.Attempts, e.CreatedAt.Format(time.RFC3339))
		if e.SyncedAt != nil {
			fmt.Fprintf(out, "    Synced: %s\n", e.SyncedAt.Format(time.RFC3339))
		}
		if e.Error != "" {
			fmt.Fprintf(out, "    Error: %s\n", scrubSensitiveData(e.Error))
		}
		if i < len(entries)-1 {
			fmt.Fprintln(out)
		}
	}
	return nil
}
