// Package mcp exposes the sync queue over the Model Context Protocol,
// so agent tooling on a field laptop can queue changes and drive drains
// without shelling out to the CLI.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fieldops/fieldsync"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server wraps the MCP server with fieldsync tools.
type Server struct {
	client    *fieldsync.Client
	mcpServer *server.MCPServer
}

// ToolResult represents the result of a tool call.
type ToolResult struct {
	Content string
	IsError bool
}

// ToolInfo represents a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// NewServer creates a new MCP server with fieldsync tools registered.
func NewServer(client *fieldsync.Client) *Server {
	s := &Server{client: client}

	s.mcpServer = server.NewMCPServer(
		"fieldsync",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.registerTools()
	return s
}

// Run starts the MCP server, reading from stdin and writing to stdout.
func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer)
}

// HandleMessage processes a raw JSON-RPC message and returns a response.
// This is primarily for testing the MCP protocol layer.
func (s *Server) HandleMessage(ctx context.Context, message json.RawMessage) mcp.JSONRPCMessage {
	return s.mcpServer.HandleMessage(ctx, message)
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return []ToolInfo{
		{Name: "fieldsync_queue", Description: "Queue a record change for later synchronization"},
		{Name: "fieldsync_process", Description: "Drain pending queue entries to the records service"},
		{Name: "fieldsync_retry", Description: "Retry failed queue entries under their retry budget"},
		{Name: "fieldsync_stats", Description: "Report queue depth and last successful sync"},
		{Name: "fieldsync_entries", Description: "Show the queue history for one record"},
		{Name: "fieldsync_cleanup", Description: "Purge old completed queue entries"},
	}
}

// CallTool executes a tool by name with the given arguments.
// This is used for testing and direct invocation.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	switch name {
	case "fieldsync_queue":
		return s.handleQueue(ctx, args)
	case "fieldsync_process":
		return s.handleProcess(ctx, args)
	case "fieldsync_retry":
		return s.handleRetry(ctx, args)
	case "fieldsync_stats":
		return s.handleStats(ctx, args)
	case "fieldsync_entries":
		return s.handleEntries(ctx, args)
	case "fieldsync_cleanup":
		return s.handleCleanup(ctx, args)
	default:
		return &ToolResult{Content: fmt.Sprintf("unknown tool: %s", name), IsError: true}, nil
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("fieldsync_queue",
		mcp.WithDescription("Queue a record change for later synchronization. The change is committed to the records service on the next drain."),
		mcp.WithString("entity_type",
			mcp.Description("Record type: case, person, evidence, casePerson, vehicle, alert"),
			mcp.Required(),
		),
		mcp.WithString("entity_id",
			mcp.Description("Target record id. May be empty for create operations; a provisional id is assigned."),
		),
		mcp.WithString("operation",
			mcp.Description("Change operation: create, update or delete"),
			mcp.Required(),
		),
		mcp.WithString("payload",
			mcp.Description("JSON object with the record fields being changed"),
		),
	), s.mcpHandleQueue)

	s.mcpServer.AddTool(mcp.NewTool("fieldsync_process",
		mcp.WithDescription("Drain pending queue entries to the records service in FIFO order."),
		mcp.WithNumber("limit",
			mcp.Description("Maximum entries to process (default: all pending)"),
		),
	), s.mcpHandleProcess)

	s.mcpServer.AddTool(mcp.NewTool("fieldsync_retry",
		mcp.WithDescription("Retry failed queue entries still under their retry budget. Quarantined entries are left alone."),
		mcp.WithNumber("max_attempts",
			mcp.Description("Retry budget; entries at or above it are skipped (default: configured maximum)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum entries to retry (default: all eligible)"),
		),
	), s.mcpHandleRetry)

	s.mcpServer.AddTool(mcp.NewTool("fieldsync_stats",
		mcp.WithDescription("Report queue depth (pending, failed) and the last successful sync time."),
	), s.mcpHandleStats)

	s.mcpServer.AddTool(mcp.NewTool("fieldsync_entries",
		mcp.WithDescription("Show the queue history for one record, newest-first."),
		mcp.WithString("entity_type",
			mcp.Description("Record type: case, person, evidence, casePerson, vehicle, alert"),
			mcp.Required(),
		),
		mcp.WithString("entity_id",
			mcp.Description("Target record id"),
			mcp.Required(),
		),
	), s.mcpHandleEntries)

	s.mcpServer.AddTool(mcp.NewTool("fieldsync_cleanup",
		mcp.WithDescription("Purge completed queue entries older than the retention window. Pending and failed entries are never purged."),
		mcp.WithNumber("older_than_days",
			mcp.Description("Retention window in days (default: configured retention)"),
		),
	), s.mcpHandleCleanup)
}

// MCP handlers that wrap internal handlers

func (s *Server) mcpHandleQueue(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.handleQueue(ctx, req.GetArguments())
	if err != nil {
		return nil, err
	}
	return toMCPResult(result), nil
}

func (s *Server) mcpHandleProcess(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.handleProcess(ctx, req.GetArguments())
	if err != nil {
		return nil, err
	}
	return toMCPResult(result), nil
}

func (s *Server) mcpHandleRetry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.handleRetry(ctx, req.GetArguments())
	if err != nil {
		return nil, err
	}
	return toMCPResult(result), nil
}

func (s *Server) mcpHandleStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.handleStats(ctx, req.GetArguments())
	if err != nil {
		return nil, err
	}
	return toMCPResult(result), nil
}

func (s *Server) mcpHandleEntries(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.handleEntries(ctx, req.GetArguments())
	if err != nil {
		return nil, err
	}
	return toMCPResult(result), nil
}

func (s *Server) mcpHandleCleanup(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.handleCleanup(ctx, req.GetArguments())
	if err != nil {
		return nil, err
	}
	return toMCPResult(result), nil
}

func toMCPResult(r *ToolResult) *mcp.CallToolResult {
	result := &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: r.Content,
			},
		},
	}
	if r.IsError {
		result.IsError = true
	}
	return result
}

// Internal handlers

func (s *Server) handleQueue(ctx context.Context, args map[string]any) (*ToolResult, error) {
	entityTypeStr, ok := args["entity_type"].(string)
	if !ok || entityTypeStr == "" {
		return &ToolResult{Content: "entity_type is required", IsError: true}, nil
	}
	entityType := fieldsync.EntityType(entityTypeStr)
	if !entityType.IsValid() {
		return &ToolResult{Content: fmt.Sprintf("invalid entity_type: %s", entityTypeStr), IsError: true}, nil
	}

	opStr, ok := args["operation"].(string)
	if !ok || opStr == "" {
		return &ToolResult{Content: "operation is required", IsError: true}, nil
	}
	op := fieldsync.Operation(opStr)
	if !op.IsValid() {
		return &ToolResult{Content: fmt.Sprintf("invalid operation: %s", opStr), IsError: true}, nil
	}

	entityID, _ := args["entity_id"].(string)

	var payload json.RawMessage
	if p, ok := args["payload"].(string); ok && p != "" {
		if !json.Valid([]byte(p)) {
			return &ToolResult{Content: "payload is not valid JSON", IsError: true}, nil
		}
		payload = json.RawMessage(p)
	}

	entry, err := s.client.QueueChange(entityType, entityID, op, payload)
	if err != nil {
		return &ToolResult{Content: fmt.Sprintf("queue failed: %v", err), IsError: true}, nil
	}

	return &ToolResult{Content: fmt.Sprintf("Queued %s %s/%s as entry %s", op, entityType, entry.EntityID, entry.ID)}, nil
}

func (s *Server) handleProcess(ctx context.Context, args map[string]any) (*ToolResult, error) {
	limit := 0
	if l, ok := args["limit"].(float64); ok {
		limit = int(l)
	}

	result, err := s.client.ProcessPendingSync(ctx, limit)
	if err != nil {
		return &ToolResult{Content: fmt.Sprintf("process failed: %v", err), IsError: true}, nil
	}

	return &ToolResult{Content: formatDrainResult("Processed pending entries", result)}, nil
}

func (s *Server) handleRetry(ctx context.Context, args map[string]any) (*ToolResult, error) {
	maxAttempts := 0
	if m, ok := args["max_attempts"].(float64); ok {
		maxAttempts = int(m)
	}
	limit := 0
	if l, ok := args["limit"].(float64); ok {
		limit = int(l)
	}

	result, err := s.client.RetryFailedSync(ctx, maxAttempts, limit)
	if err != nil {
		return &ToolResult{Content: fmt.Sprintf("retry failed: %v", err), IsError: true}, nil
	}

	return &ToolResult{Content: formatDrainResult("Retried failed entries", result)}, nil
}

func (s *Server) handleStats(ctx context.Context, args map[string]any) (*ToolResult, error) {
	stats, err := s.client.GetSyncStats()
	if err != nil {
		return &ToolResult{Content: fmt.Sprintf("stats failed: %v", err), IsError: true}, nil
	}

	var sb strings.Builder
	sb.WriteString("Sync queue status:\n")
	sb.WriteString(fmt.Sprintf("  Pending: %d\n", stats.Pending))
	sb.WriteString(fmt.Sprintf("  Failed: %d\n", stats.Failed))
	if stats.LastSyncAt != nil {
		sb.WriteString(fmt.Sprintf("  Last sync: %s\n", stats.LastSyncAt.Format("2006-01-02 15:04:05 MST")))
	} else {
		sb.WriteString("  Last sync: never\n")
	}
	return &ToolResult{Content: sb.String()}, nil
}

func (s *Server) handleEntries(ctx context.Context, args map[string]any) (*ToolResult, error) {
	entityTypeStr, ok := args["entity_type"].(string)
	if !ok || entityTypeStr == "" {
		return &ToolResult{Content: "entity_type is required", IsError: true}, nil
	}
	entityID, ok := args["entity_id"].(string)
	if !ok || entityID == "" {
		return &ToolResult{Content: "entity_id is required", IsError: true}, nil
	}

	entries, err := s.client.EntriesByEntity(fieldsync.EntityType(entityTypeStr), entityID)
	if err != nil {
		return &ToolResult{Content: fmt.Sprintf("entries lookup failed: %v", err), IsError: true}, nil
	}
	if len(entries) == 0 {
		return &ToolResult{Content: fmt.Sprintf("No queue entries for %s/%s.", entityTypeStr, entityID)}, nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Queue history for %s/%s (%d entries, newest first):\n\n", entityTypeStr, entityID, len(entries)))
	for _, e := range entries {
		sb.WriteString(fmt.Sprintf("[%s] %s %s attempts=%d\n", e.ID, e.Operation, e.Status, e.Attempts))
		if e.Error != "" {
			sb.WriteString(fmt.Sprintf("    error: %s\n", e.Error))
		}
	}
	return &ToolResult{Content: sb.String()}, nil
}

func (s *Server) handleCleanup(ctx context.Context, args map[string]any) (*ToolResult, error) {
	days := 0
	if d, ok := args["older_than_days"].(float64); ok {
		days = int(d)
	}

	deleted, err := s.client.CleanupOldEntries(days)
	if err != nil {
		return &ToolResult{Content: fmt.Sprintf("cleanup failed: %v", err), IsError: true}, nil
	}
	return &ToolResult{Content: fmt.Sprintf("Purged %d completed entries.", deleted)}, nil
}

func formatDrainResult(title string, result *fieldsync.DrainResult) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s: synced=%d failed=%d\n", title, result.Synced, result.Failed))
	for _, e := range result.Errors {
		sb.WriteString(fmt.Sprintf("  - %s: %s\n", e.EntryID, e.Error))
	}
	return sb.String()
}
