package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// testEnv sets up a test environment with a temporary database.
// Returns a cleanup function.
func testEnv(t *testing.T) func() {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "queue.db")

	// Save original env
	origDBPath := os.Getenv("FIELDSYNC_DB_PATH")
	origDatabaseURL := os.Getenv("FIELDSYNC_DATABASE_URL")
	origRecordsURL := os.Getenv("RECORDS_API_URL")
	origAPIKey := os.Getenv("RECORDS_API_KEY")

	// Set test env
	os.Setenv("FIELDSYNC_DB_PATH", dbPath)
	os.Setenv("FIELDSYNC_DATABASE_URL", "")
	os.Setenv("RECORDS_API_URL", "")
	os.Setenv("RECORDS_API_KEY", "")

	resetFlags()

	return func() {
		os.Setenv("FIELDSYNC_DB_PATH", origDBPath)
		os.Setenv("FIELDSYNC_DATABASE_URL", origDatabaseURL)
		os.Setenv("RECORDS_API_URL", origRecordsURL)
		os.Setenv("RECORDS_API_KEY", origAPIKey)

		resetFlags()
	}
}

// resetFlags resets global flag state between tests.
func resetFlags() {
	cfgDBPath = ""
	cfgDatabaseURL = ""
	cfgRecordsURL = ""
	cfgAPIKey = ""
	cfgDeviceID = ""
	cfgDebug = false
	outputJSON = false
	queuePayload = ""
	queuePayloadFile = ""
	syncLimit = 0
	syncRetry = false
	syncMaxAttempts = 0
	statsHealth = false
	entriesDelete = ""
	cleanupOlderThanDays = 0
	exportStatus = ""
	importRequeue = false
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), err
}

func TestCLI_Help_ListsAllCommands(t *testing.T) {
	defer testEnv(t)()

	output, err := execute(t, "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedCommands := []string{"queue", "sync", "stats", "entries", "cleanup", "export", "import", "mcp", "version"}
	for _, cmd := range expectedCommands {
		if !strings.Contains(output, cmd) {
			t.Errorf("--help output should contain %q command", cmd)
		}
	}
}

func TestCLI_Queue_AndStats(t *testing.T) {
	defer testEnv(t)()

	output, err := execute(t, "queue", "case", "create",
		"--payload", `{"caseNumber":"HQ-2026-000123","title":"Burglary","officerId":"officer-7"}`)
	if err != nil {
		t.Fatalf("queue command failed: %v", err)
	}
	if !strings.Contains(output, "Queued:") {
		t.Errorf("expected queued confirmation, got: %s", output)
	}

	resetFlags()
	output, err = execute(t, "stats")
	if err != nil {
		t.Fatalf("stats command failed: %v", err)
	}
	if !strings.Contains(output, "Pending: 1") {
		t.Errorf("expected one pending entry, got: %s", output)
	}
}

func TestCLI_Queue_RejectsUnknownEntityType(t *testing.T) {
	defer testEnv(t)()

	_, err := execute(t, "queue", "starship", "create")
	if err == nil {
		t.Fatal("expected error for unknown entity type")
	}
	if !strings.Contains(err.Error(), "unknown entity type") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCLI_Queue_RequiresEntityIDForUpdate(t *testing.T) {
	defer testEnv(t)()

	_, err := execute(t, "queue", "case", "update")
	if err == nil {
		t.Fatal("expected error for update without entity id")
	}
}

func TestCLI_Sync_RequiresRecordsURL(t *testing.T) {
	defer testEnv(t)()

	_, err := execute(t, "sync")
	if err == nil {
		t.Fatal("expected error without RECORDS_API_URL")
	}
	if !strings.Contains(err.Error(), "RECORDS_API_URL") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCLI_QueueSyncRoundTrip(t *testing.T) {
	defer testEnv(t)()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	_, err := execute(t, "queue", "person", "create",
		"--payload", `{"nationalId":"19850101-1234","firstName":"Anna","lastName":"Berg"}`)
	if err != nil {
		t.Fatalf("queue command failed: %v", err)
	}

	resetFlags()
	os.Setenv("RECORDS_API_URL", server.URL)
	os.Setenv("RECORDS_API_KEY", "test-key")
	defer func() {
		os.Setenv("RECORDS_API_URL", "")
		os.Setenv("RECORDS_API_KEY", "")
	}()

	output, err := execute(t, "sync", "--json")
	if err != nil {
		t.Fatalf("sync command failed: %v", err)
	}

	var result struct {
		Success bool `json:"success"`
		Synced  int  `json:"synced"`
		Failed  int  `json:"failed"`
	}
	// The spinner prints its message before the JSON line.
	jsonStart := strings.Index(output, "{")
	if jsonStart < 0 {
		t.Fatalf("no JSON in output: %s", output)
	}
	if err := json.Unmarshal([]byte(output[jsonStart:]), &result); err != nil {
		t.Fatalf("output should be valid JSON: %v (output: %s)", err, output)
	}
	if !result.Success || result.Synced != 1 || result.Failed != 0 {
		t.Errorf("unexpected drain result: %+v", result)
	}
}

func TestCLI_ExportImportRoundTrip(t *testing.T) {
	defer testEnv(t)()

	_, err := execute(t, "queue", "vehicle", "update", "vehicle-9",
		"--payload", `{"licensePlate":"ABC123","make":"Volvo"}`)
	if err != nil {
		t.Fatalf("queue command failed: %v", err)
	}

	exportPath := filepath.Join(t.TempDir(), "entries.jsonl")
	resetFlags()
	if _, err := execute(t, "export", exportPath); err != nil {
		t.Fatalf("export command failed: %v", err)
	}

	// Import into a fresh database.
	freshDB := filepath.Join(t.TempDir(), "fresh.db")
	os.Setenv("FIELDSYNC_DB_PATH", freshDB)

	resetFlags()
	output, err := execute(t, "import", "--requeue", exportPath)
	if err != nil {
		t.Fatalf("import command failed: %v", err)
	}
	if !strings.Contains(output, "Imported 1 of 1") {
		t.Errorf("unexpected import output: %s", output)
	}

	resetFlags()
	output, err = execute(t, "stats")
	if err != nil {
		t.Fatalf("stats command failed: %v", err)
	}
	if !strings.Contains(output, "Pending: 1") {
		t.Errorf("expected the imported entry pending, got: %s", output)
	}
}

func TestCLI_Cleanup_EmptyQueue(t *testing.T) {
	defer testEnv(t)()

	output, err := execute(t, "cleanup")
	if err != nil {
		t.Fatalf("cleanup command failed: %v", err)
	}
	if !strings.Contains(output, "Purged 0") {
		t.Errorf("unexpected cleanup output: %s", output)
	}
}
