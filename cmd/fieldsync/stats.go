package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show sync queue statistics",
	Long: `Display queue depth and the last successful sync time.

Example:
  fieldsync stats
  fieldsync stats --health`,
	RunE: runStats,
}

var statsHealth bool

func init() {
	statsCmd.Flags().BoolVar(&statsHealth, "health", false, "Include health check")
}

func runStats(cmd *cobra.Command, args []string) error {
	client, err := newClient(loadConfig())
	if err != nil {
		return fmt.Errorf("initialize client: %w", err)
	}
	defer client.Close()

	stats, err := client.GetSyncStats()
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	if outputJSON && !statsHealth {
		return outputAsJSON(cmd, stats)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Sync Queue Statistics")
	fmt.Fprintln(out, "---------------------")
	fmt.Fprintf(out, "Pending: %d\n", stats.Pending)
	fmt.Fprintf(out, "Failed:  %d\n", stats.Failed)

	if stats.LastSyncAt != nil {
		fmt.Fprintf(out, "Last sync: %s (%s ago)\n",
			stats.LastSyncAt.Format(time.RFC3339),
			time.Since(*stats.LastSyncAt).Round(time.Minute))
	} else {
		fmt.Fprintln(out, "Last sync: never")
	}

	if statsHealth {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Health Check")
		fmt.Fprintln(out, "------------")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		health := client.HealthCheck(ctx)

		if outputJSON {
			return outputAsJSON(cmd, map[string]interface{}{
				"stats":  stats,
				"health": health,
			})
		}

		status := "healthy"
		if !health.Healthy {
			status = "unhealthy"
		}
		fmt.Fprintf(out, "Status:            %s\n", status)
		fmt.Fprintf(out, "Store OK:          %v\n", health.StoreOK)
		fmt.Fprintf(out, "Records reachable: %v\n", health.RecordsReachable)

		if health.Error != "" {
			fmt.Fprintf(out, "Error:             %s\n", scrubSensitiveData(health.Error))
		}
	}

	return nil
}
