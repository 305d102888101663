package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestVersion_Human_ShowsVersionInfo(t *testing.T) {
	defer testEnv(t)()

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetArgs([]string{"version"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("version command should not error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "fieldsync ") {
		t.Error("output should start with 'fieldsync '")
	}
	for _, field := range []string{"commit:", "built:", "go:", "os:"} {
		if !strings.Contains(output, field) {
			t.Errorf("output should contain %q", field)
		}
	}
}

func TestVersion_JSON_ReturnsValidJSON(t *testing.T) {
	defer testEnv(t)()

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetArgs([]string{"version", "--json"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("version --json should not error: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		t.Fatalf("output should be valid JSON: %v", err)
	}

	requiredFields := []string{"version", "commit", "date", "go", "os", "arch"}
	for _, field := range requiredFields {
		if _, ok := result[field]; !ok {
			t.Errorf("JSON should have '%s' field", field)
		}
	}
}
