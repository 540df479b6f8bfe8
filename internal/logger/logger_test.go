package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetup_ReturnsJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf)

	if l == nil {
		t.Fatal("expected non-nil logger")
	}

	l.Info("test message", slog.String("key", "value"))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected valid JSON log output, got error: %v\nraw output: %s", err, buf.String())
	}

	if entry["msg"] != "test message" {
		t.Errorf("msg = %q, want %q", entry["msg"], "test message")
	}
	if entry["key"] != "value" {
		t.Errorf("key = %q, want %q", entry["key"], "value")
	}
}

func TestSetup_IncludesTimeField(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf)

	l.Info("test")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}

	if _, ok := entry["time"]; !ok {
		t.Error("expected 'time' field in JSON log output")
	}
}

func TestSetup_IncludesLevelField(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf)

	l.Warn("warning test")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}

	if entry["level"] != "WARN" {
		t.Errorf("level = %q, want %q", entry["level"], "WARN")
	}
}

func TestSetup_MultipleAttributes(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf)

	l.Info("cycle completed",
		slog.String("provider", "imap"),
		slog.String("message_id", "42"),
		slog.String("post_url", "https://nextdoor.com/p/abc"),
		slog.Int("created", 2),
		slog.Int("fetched", 25),
	)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}

	if entry["provider"] != "imap" {
		t.Errorf("provider = %q, want %q", entry["provider"], "imap")
	}
	if entry["message_id"] != "42" {
		t.Errorf("message_id = %q, want %q", entry["message_id"], "42")
	}
	if entry["post_url"] != "https://nextdoor.com/p/abc" {
		t.Errorf("post_url = %q, want %q", entry["post_url"], "https://nextdoor.com/p/abc")
	}
	if entry["created"] != float64(2) {
		t.Errorf("created = %v, want %v", entry["created"], 2)
	}
	if entry["fetched"] != float64(25) {
		t.Errorf("fetched = %v, want %v", entry["fetched"], 25)
	}
}

func TestSetupDefault_SetsGlobalLogger(t *testing.T) {
	var buf bytes.Buffer
	SetupDefault(&buf)

	slog.Default().Info("global test", slog.String("test_key", "test_val"))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON: %v\nraw: %s", err, buf.String())
	}

	if entry["msg"] != "global test" {
		t.Errorf("msg = %q, want %q", entry["msg"], "global test")
	}
	if entry["test_key"] != "test_val" {
		t.Errorf("test_key = %q, want %q", entry["test_key"], "test_val")
	}
}

func TestNewWriter_NoPath_ReturnsSameWriter(t *testing.T) {
	var buf bytes.Buffer
	w, closer := NewWriter(&buf, FileOptions{})
	defer closer.Close()

	if w != &buf {
		t.Error("Pathが空の場合は渡したwriterをそのまま返すべき")
	}
}

func TestNewWriter_WritesToBothDestinations(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "greenleads.log")

	w, closer := NewWriter(&buf, FileOptions{Path: path, MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1})
	l := Setup(w)
	l.Info("ファイル出力テスト", slog.String("key", "value"))
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if !strings.Contains(buf.String(), "ファイル出力テスト") {
		t.Errorf("標準出力側に出力されていない: %s", buf.String())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ログファイルの読み込みに失敗: %v", err)
	}
	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(data), &entry); err != nil {
		t.Fatalf("ログファイルがJSONではない: %v\nraw: %s", err, data)
	}
	if entry["key"] != "value" {
		t.Errorf("key = %q, want %q", entry["key"], "value")
	}
}
