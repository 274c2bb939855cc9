package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const channelsYAML = `
channels:
  - name: Morning
    slots:
      - day: monday
        start: "10:00"
        minutes: 60
  - name: Later
    slots:
      - day: monday
        start: "10:40"
        minutes: 20
  - name: Paused
    active: false
`

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		statesAt, statesJSON, statesMinInterval, statesTimezone = "", false, 11, "UTC"
		importDryRun = false
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func writeChannels(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "channels.yaml")
	if err := os.WriteFile(path, []byte(channelsYAML), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return path
}

func TestStatesCommandTable(t *testing.T) {
	out, err := runRoot(t, "states", "--file", writeChannels(t), "--at", "2026-10-19T10:30:00Z")
	if err != nil {
		t.Fatalf("states: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Morning") || !strings.Contains(out, "current") || !strings.Contains(out, "00:30:00") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if strings.Contains(out, "Paused") {
		t.Fatalf("inactive channel listed:\n%s", out)
	}
}

func TestStatesCommandJSON(t *testing.T) {
	out, err := runRoot(t, "states", "--file", writeChannels(t), "--at", "2026-10-19T10:30:00Z", "--min-interval", "5", "--json")
	if err != nil {
		t.Fatalf("states: %v\n%s", err, out)
	}
	var rows []struct {
		ChannelID string `json:"channel_id"`
		Info      struct {
			State string `json:"state"`
		} `json:"info"`
	}
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(rows) != 2 || rows[0].Info.State != "current" || rows[1].Info.State != "default" {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestStatesCommandRejectsBadInstant(t *testing.T) {
	if _, err := runRoot(t, "states", "--file", writeChannels(t), "--at", "tomorrow"); err == nil {
		t.Fatal("expected error for bad --at")
	}
}

func TestImportDryRun(t *testing.T) {
	out, err := runRoot(t, "import", "--file", writeChannels(t), "--dry-run")
	if err != nil {
		t.Fatalf("import: %v\n%s", err, out)
	}
	if !strings.Contains(out, "3 channels valid") {
		t.Fatalf("output = %q", out)
	}
}
