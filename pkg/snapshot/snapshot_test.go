package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	captured := time.Date(2025, 11, 22, 13, 4, 5, 0, time.Local)
	w := &Writer{directory: dir, now: func() time.Time { return captured }}

	path, err := w.Write("203.0.113.7", "ip-api.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := filepath.Join(dir, "ip_20251122_130405.json"); path != want {
		t.Fatalf("got path %q, want %q", path, want)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	want := "{\n  \"ip\": \"203.0.113.7\",\n  \"provider\": \"ip-api.com\"\n}"
	if string(raw) != want {
		t.Fatalf("unexpected content:\n%s", raw)
	}
}

func TestWriteSameSecondOverwrites(t *testing.T) {
	dir := t.TempDir()
	captured := time.Date(2025, 1, 2, 3, 4, 5, 0, time.Local)
	w := &Writer{directory: dir, now: func() time.Time { return captured }}

	if _, err := w.Write("203.0.113.7", "ip-api.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	captured = captured.Add(900 * time.Millisecond)
	path, err := w.Write("198.51.100.1", "jsonip.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected a single file, got %d", len(entries))
	}

	raw, _ := os.ReadFile(path)
	var got Snapshot
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if got.IP != "198.51.100.1" || got.Provider != "jsonip.com" {
		t.Fatalf("expected the later snapshot to win, got %+v", got)
	}
}

func TestWriteDistinctSeconds(t *testing.T) {
	dir := t.TempDir()
	captured := time.Date(2025, 1, 2, 3, 4, 5, 0, time.Local)
	w := &Writer{directory: dir, now: func() time.Time { return captured }}

	for i := 0; i < 3; i++ {
		if _, err := w.Write("203.0.113.7", "ip-api.com"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		captured = captured.Add(time.Second)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 3 {
		t.Fatalf("expected 3 files, got %d", len(entries))
	}
}

func TestWriteDirectoryError(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("setup: %v", err)
	}

	w := NewWriter(filepath.Join(blocker, "data"))
	if _, err := w.Write("203.0.113.7", "ip-api.com"); err == nil {
		t.Fatal("expected error when the directory cannot be created")
	}
}
