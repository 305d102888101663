package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fieldops/fieldsync"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Drain the queue against the records service",
	Long: `Drain queued changes against the central records service.

By default pending entries drain in FIFO order. With --retry, failed
entries still under their retry budget are re-offered and drained;
quarantined entries are left alone.

Example:
  fieldsync sync                    # Drain all pending entries
  fieldsync sync --limit 50         # Drain at most 50 entries
  fieldsync sync --retry            # Retry eligible failed entries
  fieldsync sync --retry --max-attempts 5`,
	RunE: runSync,
}

var (
	syncLimit       int
	syncRetry       bool
	syncMaxAttempts int
)

func init() {
	syncCmd.Flags().IntVar(&syncLimit, "limit", 0, "Maximum entries to drain (0 = all)")
	syncCmd.Flags().BoolVar(&syncRetry, "retry", false, "Retry failed entries instead of draining pending ones")
	syncCmd.Flags().IntVar(&syncMaxAttempts, "max-attempts", 0, "Retry budget; entries at or above it are quarantined (0 = configured default)")
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	if cfg.RecordsURL == "" {
		return fmt.Errorf("RECORDS_API_URL not configured")
	}

	client, err := newClient(cfg)
	if err != nil {
		return fmt.Errorf("initialize client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	message := "Draining pending entries"
	if syncRetry {
		message = "Retrying failed entries"
	}

	start := time.Now()
	var result *fieldsync.DrainResult
	err = runWithSpinner(cmd.ErrOrStderr(), message, func() error {
		if syncRetry {
			result, err = client.RetryFailedSync(ctx, syncMaxAttempts, syncLimit)
		} else {
			result, err = client.ProcessPendingSync(ctx, syncLimit)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	return outputDrainResult(cmd, result, time.Since(start))
}
