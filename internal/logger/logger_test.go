package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNewRejectsBadInput(t *testing.T) {
	if _, err := New("loud", "json", "stderr"); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := New("info", "xml", "stderr"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentinel.log")

	log, err := New("info", "json", path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Debug("hidden")
	log.Info("scan complete", zap.Int("messages", 12))
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1 (debug filtered):\n%s", len(lines), data)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	if entry["message"] != "scan complete" || entry["level"] != "info" {
		t.Errorf("entry = %v", entry)
	}
	if entry["messages"] != float64(12) {
		t.Errorf("messages field = %v", entry["messages"])
	}
}
