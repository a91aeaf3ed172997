// Package snapshot writes the result of each successful lookup to a JSON file
// named after the local capture time.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const fileNameLayout = "20060102_150405"

// Snapshot is the document written to disk.
type Snapshot struct {
	IP       string `json:"ip"`
	Provider string `json:"provider"`
}

// Writer creates snapshot files in a single directory. Files written within
// the same second share a name and the later one wins.
type Writer struct {
	directory string
	now       func() time.Time
}

// NewWriter returns a Writer using the local wall clock.
func NewWriter(directory string) *Writer {
	return &Writer{directory: directory, now: time.Now}
}

// Directory returns the output directory.
func (w *Writer) Directory() string {
	return w.directory
}

// Write creates the directory if needed and writes the snapshot, returning the file path.
func (w *Writer) Write(ip, provider string) (string, error) {
	if err := os.MkdirAll(w.directory, 0o755); err != nil {
		return "", fmt.Errorf("could not create snapshot directory: %w", err)
	}

	data, err := json.MarshalIndent(Snapshot{IP: ip, Provider: provider}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("could not encode snapshot: %w", err)
	}

	path := filepath.Join(w.directory, FileName(w.now()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("could not write snapshot: %w", err)
	}
	return path, nil
}

// FileName returns the snapshot file name for a capture time.
func FileName(t time.Time) string {
	return "ip_" + t.Local().Format(fileNameLayout) + ".json"
}
