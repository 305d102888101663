package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestHasMarkdown(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{"code block", "```go\nfunc main() {}\n```", true},
		{"header", "## Section", true},
		{"bold", "this is **important**", true},
		{"list item", "- first\n- second", true},
		{"inline code", "run `fieldsync sync`", true},
		{"plain text", "nothing special here", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hasMarkdown(tt.content); got != tt.want {
				t.Errorf("hasMarkdown(%q) = %v, want %v", tt.content, got, tt.want)
			}
		})
	}
}

func TestRenderMarkdown_NonTTY_ReturnsUnchanged(t *testing.T) {
	// Tests run without a terminal, so content passes through untouched.
	content := "## Header\n\nSome **bold** text"
	if got := renderMarkdown(content); got != content {
		t.Errorf("expected unchanged content in non-TTY mode, got %q", got)
	}
}

func TestScrubSensitiveData(t *testing.T) {
	cfgAPIKey = "secret-key-123"
	defer func() { cfgAPIKey = "" }()

	msg := scrubSensitiveData("auth failed with key secret-key-123")
	if strings.Contains(msg, "secret-key-123") {
		t.Error("API key should be redacted")
	}
	if !strings.Contains(msg, "[REDACTED]") {
		t.Error("expected [REDACTED] placeholder")
	}
}

func TestScrubSensitiveData_NoKey(t *testing.T) {
	cfgAPIKey = ""
	msg := scrubSensitiveData("plain error message")
	if msg != "plain error message" {
		t.Errorf("message should pass through unchanged, got %q", msg)
	}
}

func TestPrintHelpers_NonTTY(t *testing.T) {
	var buf bytes.Buffer

	printSuccess(&buf, "synced %d entries", 3)
	printError(&buf, "entry %s failed", "abc")
	printWarning(&buf, "quarantined")
	printInfo(&buf, "draining")
	printMuted(&buf, "details")
	printLabel(&buf, "Status:")

	output := buf.String()
	for _, want := range []string{"synced 3 entries", "entry abc failed", "quarantined", "draining", "details", "Status:"} {
		if !strings.Contains(output, want) {
			t.Errorf("output should contain %q", want)
		}
	}
}

func TestRenderBanner_ContainsTitle(t *testing.T) {
	banner := renderBannerWithTagline()
	if !strings.Contains(banner, "FIELDSYNC") {
		t.Error("banner should contain the FIELDSYNC title")
	}
	if !strings.Contains(banner, version) {
		t.Error("banner should contain the version")
	}
}
