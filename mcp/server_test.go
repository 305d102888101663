package mcp_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fieldops/fieldsync"
	fieldsyncmcp "github.com/fieldops/fieldsync/mcp"
)

func testClient(t *testing.T) *fieldsync.Client {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "queue.db")

	client, err := fieldsync.New(fieldsync.Config{LocalPath: dbPath})
	if err != nil {
		t.Fatalf("fieldsync.New() returned error: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	// Commit locally so drains succeed without a records service.
	for _, et := range fieldsync.ValidEntityTypes() {
		client.RegisterCommitter(et, fieldsync.CommitterFunc(
			func(ctx context.Context, op fieldsync.Operation, entityID string, payload json.RawMessage) error {
				return nil
			}))
	}
	return client
}

func TestServer_NewServer(t *testing.T) {
	server := fieldsyncmcp.NewServer(testClient(t))
	if server == nil {
		t.Fatal("NewServer() returned nil")
	}
}

func TestServer_ToolsList(t *testing.T) {
	server := fieldsyncmcp.NewServer(testClient(t))
	tools := server.ListTools()

	expectedTools := []string{
		"fieldsync_queue", "fieldsync_process", "fieldsync_retry",
		"fieldsync_stats", "fieldsync_entries", "fieldsync_cleanup",
	}
	if len(tools) != len(expectedTools) {
		t.Errorf("ListTools() returned %d tools, want %d", len(tools), len(expectedTools))
	}

	toolNames := make(map[string]bool)
	for _, tool := range tools {
		toolNames[tool.Name] = true
	}
	for _, expected := range expectedTools {
		if !toolNames[expected] {
			t.Errorf("Tool %q not found in registered tools", expected)
		}
	}
}

func TestTool_Queue_Success(t *testing.T) {
	server := fieldsyncmcp.NewServer(testClient(t))

	result, err := server.CallTool(context.Background(), "fieldsync_queue", map[string]any{
		"entity_type": "case",
		"entity_id":   "case-1",
		"operation":   "update",
		"payload":     `{"caseNumber":"HQ-2026-000042","title":"Updated","officerId":"officer-3"}`,
	})
	if err != nil {
		t.Fatalf("CallTool() returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("CallTool() returned error result: %s", result.Content)
	}
	if !strings.Contains(result.Content, "case/case-1") {
		t.Errorf("unexpected content: %s", result.Content)
	}
}

func TestTool_Queue_InvalidEntityType(t *testing.T) {
	server := fieldsyncmcp.NewServer(testClient(t))

	result, err := server.CallTool(context.Background(), "fieldsync_queue", map[string]any{
		"entity_type": "spaceship",
		"operation":   "create",
	})
	if err != nil {
		t.Fatalf("CallTool() returned error: %v", err)
	}
	if !result.IsError {
		t.Error("expected error result for unknown entity type")
	}
}

func TestTool_Queue_InvalidPayloadJSON(t *testing.T) {
	server := fieldsyncmcp.NewServer(testClient(t))

	result, err := server.CallTool(context.Background(), "fieldsync_queue", map[string]any{
		"entity_type": "case",
		"operation":   "create",
		"payload":     "{not json",
	})
	if err != nil {
		t.Fatalf("CallTool() returned error: %v", err)
	}
	if !result.IsError {
		t.Error("expected error result for malformed payload")
	}
}

func TestTool_ProcessAndStats(t *testing.T) {
	client := testClient(t)
	server := fieldsyncmcp.NewServer(client)

	_, err := client.QueueChange(fieldsync.EntityPerson, "person-1", fieldsync.OpCreate,
		json.RawMessage(`{"nationalId":"19900101-5678","firstName":"Erik","lastName":"Lind"}`))
	if err != nil {
		t.Fatalf("QueueChange() returned error: %v", err)
	}

	result, err := server.CallTool(context.Background(), "fieldsync_process", map[string]any{})
	if err != nil {
		t.Fatalf("CallTool(process) returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("process returned error result: %s", result.Content)
	}
	if !strings.Contains(result.Content, "synced=1") {
		t.Errorf("expected one synced entry, got: %s", result.Content)
	}

	stats, err := server.CallTool(context.Background(), "fieldsync_stats", map[string]any{})
	if err != nil {
		t.Fatalf("CallTool(stats) returned error: %v", err)
	}
	if !strings.Contains(stats.Content, "Pending: 0") {
		t.Errorf("expected empty backlog, got: %s", stats.Content)
	}
}

func TestTool_Entries(t *testing.T) {
	client := testClient(t)
	server := fieldsyncmcp.NewServer(client)

	_, err := client.QueueChange(fieldsync.EntityVehicle, "vehicle-9", fieldsync.OpUpdate,
		json.RawMessage(`{"licensePlate":"ABC123","make":"Volvo"}`))
	if err != nil {
		t.Fatalf("QueueChange() returned error: %v", err)
	}

	result, err := server.CallTool(context.Background(), "fieldsync_entries", map[string]any{
		"entity_type": "vehicle",
		"entity_id":   "vehicle-9",
	})
	if err != nil {
		t.Fatalf("CallTool() returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("entries returned error result: %s", result.Content)
	}
	if !strings.Contains(result.Content, "vehicle/vehicle-9") {
		t.Errorf("unexpected content: %s", result.Content)
	}
}

func TestTool_UnknownTool(t *testing.T) {
	server := fieldsyncmcp.NewServer(testClient(t))

	result, err := server.CallTool(context.Background(), "fieldsync_bogus", map[string]any{})
	if err != nil {
		t.Fatalf("CallTool() returned error: %v", err)
	}
	if !result.IsError {
		t.Error("expected error result for unknown tool")
	}
}
