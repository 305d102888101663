package main

import (
	"fmt"
	"os"

	"github.com/fieldops/fieldsync"
	"github.com/fieldops/fieldsync/pgstore"
	"github.com/spf13/cobra"
)

var (
	cfgDBPath      string
	cfgDatabaseURL string
	cfgRecordsURL  string
	cfgAPIKey      string
	cfgDeviceID    string
	cfgDebug       bool
	outputJSON     bool
)

var rootCmd = &cobra.Command{
	Use:   "fieldsync",
	Short: "FieldSync - Offline records sync CLI",
	Long: `FieldSync queues record changes made in the field and replays them
against the central records service once connectivity returns.

Changes queue locally in SQLite, drain in FIFO order, and failed
entries retry under a bounded budget before quarantine.`,
	Run: func(cmd *cobra.Command, args []string) {
		if isTTY() {
			fmt.Fprintln(cmd.OutOrStdout(), renderBannerWithTagline())
			fmt.Fprintln(cmd.OutOrStdout())
		}
		_ = cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgDBPath, "db-path", "", "Path to local queue database (default: ~/.fieldsync/queue.db)")
	rootCmd.PersistentFlags().StringVar(&cfgDatabaseURL, "database-url", "", "Postgres DSN for a server-side shared queue (overrides --db-path)")
	rootCmd.PersistentFlags().StringVar(&cfgRecordsURL, "records-url", "", "Base URL of the central records service")
	rootCmd.PersistentFlags().StringVar(&cfgAPIKey, "api-key", "", "API key for records service authentication")
	rootCmd.PersistentFlags().StringVar(&cfgDeviceID, "device-id", "", "Device identifier sent with commits (default: hostname)")
	rootCmd.PersistentFlags().BoolVar(&cfgDebug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output machine-readable JSON")

	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(entriesCmd)
	rootCmd.AddCommand(cleanupCmd)
}

func loadConfig() fieldsync.Config {
	cfg := fieldsync.DefaultConfig()

	// Override with flags
	if cfgDBPath != "" {
		cfg.LocalPath = cfgDBPath
	}
	if cfgDatabaseURL != "" {
		cfg.DatabaseURL = cfgDatabaseURL
	}
	if cfgRecordsURL != "" {
		cfg.RecordsURL = cfgRecordsURL
	}
	if cfgAPIKey != "" {
		cfg.APIKey = cfgAPIKey
	}
	if cfgDeviceID != "" {
		cfg.DeviceID = cfgDeviceID
	}
	if cfgDebug {
		cfg.Debug = true
	}

	// Override with environment variables
	if v := os.Getenv("FIELDSYNC_DB_PATH"); v != "" && cfgDBPath == "" {
		cfg.LocalPath = v
	}
	if v := os.Getenv("FIELDSYNC_DATABASE_URL"); v != "" && cfgDatabaseURL == "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("RECORDS_API_URL"); v != "" && cfgRecordsURL == "" {
		cfg.RecordsURL = v
	}
	if v := os.Getenv("RECORDS_API_KEY"); v != "" && cfgAPIKey == "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("FIELDSYNC_DEVICE_ID"); v != "" && cfgDeviceID == "" {
		cfg.DeviceID = v
	}
	if os.Getenv("FIELDSYNC_DEBUG") != "" {
		cfg.Debug = true
	}

	// CLI commands are short-lived; maintenance runs via the cleanup
	// command instead of a background task.
	cfg.AutoMaintain = false

	return cfg
}

// newClient builds a client over the configured backend: the shared
// Postgres queue when a database URL is set, the local SQLite file
// otherwise.
func newClient(cfg fieldsync.Config) (*fieldsync.Client, error) {
	if cfg.DatabaseURL != "" {
		queue, err := pgstore.New(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return fieldsync.NewWithQueue(cfg, queue)
	}
	return fieldsync.New(cfg)
}
