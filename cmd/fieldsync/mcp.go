package main

import (
	fieldsyncmcp "github.com/fieldops/fieldsync/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for coding agent integration",
	Long: `Start a Model Context Protocol (MCP) server over stdio.

This lets agent tooling queue record changes and drive drains directly.

Configuration example:

  {
    "mcpServers": {
      "fieldsync": {
        "command": "fieldsync",
        "args": ["mcp"],
        "env": {
          "FIELDSYNC_DB_PATH": "/path/to/queue.db"
        }
      }
    }
  }

Environment variables:
  FIELDSYNC_DB_PATH       Path to local SQLite queue database
  FIELDSYNC_DATABASE_URL  Postgres DSN for a shared server-side queue
  RECORDS_API_URL         Records service URL (optional, enables drains)
  RECORDS_API_KEY         Records API key (required if RECORDS_API_URL set)`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	client, err := newClient(loadConfig())
	if err != nil {
		return err
	}
	defer client.Close()

	server := fieldsyncmcp.NewServer(client)
	return server.Run()
}
