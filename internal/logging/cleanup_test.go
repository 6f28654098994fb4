package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeTranscript drops a transcript file under owner/repo/pr with the
// given age in days.
func writeTranscript(t *testing.T, baseDir string, pr int, name string, ageDays int) string {
	t.Helper()
	dir := filepath.Join(baseDir, "acme", "widgets", fmt.Sprintf("%d", pr))
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("transcript"), 0644); err != nil {
		t.Fatal(err)
	}
	mtime := time.Now().AddDate(0, 0, -ageDays)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCleanup_RemovesExpiredTranscripts(t *testing.T) {
	baseDir := t.TempDir()
	old := writeTranscript(t, baseDir, 1, "old-session.log", 60)
	recent := writeTranscript(t, baseDir, 2, "recent-session.log", 1)

	deleted, err := NewCleaner(baseDir, 30).Cleanup()
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("expired transcript should be deleted")
	}
	if _, err := os.Stat(recent); err != nil {
		t.Errorf("recent transcript should survive: %v", err)
	}
}

func TestCleanup_PrunesEmptiedDirectories(t *testing.T) {
	baseDir := t.TempDir()
	old := writeTranscript(t, baseDir, 1, "old-session.log", 60)

	if _, err := NewCleaner(baseDir, 30).Cleanup(); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}

	// The whole acme/widgets/1 chain should be gone, the base dir not.
	if _, err := os.Stat(filepath.Dir(old)); !os.IsNotExist(err) {
		t.Error("emptied pr directory should be pruned")
	}
	if _, err := os.Stat(filepath.Join(baseDir, "acme")); !os.IsNotExist(err) {
		t.Error("emptied owner directory should be pruned")
	}
	if _, err := os.Stat(baseDir); err != nil {
		t.Errorf("base dir must never be pruned: %v", err)
	}
}

func TestCleanup_IgnoresNonTranscriptFiles(t *testing.T) {
	baseDir := t.TempDir()
	other := filepath.Join(baseDir, "notes.txt")
	if err := os.WriteFile(other, []byte("keep"), 0644); err != nil {
		t.Fatal(err)
	}
	mtime := time.Now().AddDate(0, 0, -60)
	os.Chtimes(other, mtime, mtime)

	deleted, err := NewCleaner(baseDir, 30).Cleanup()
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if deleted != 0 {
		t.Errorf("deleted = %d, want 0", deleted)
	}
	if _, err := os.Stat(other); err != nil {
		t.Errorf("non-transcript file should survive: %v", err)
	}
}

func TestCleanup_RetentionDisabled(t *testing.T) {
	baseDir := t.TempDir()
	old := writeTranscript(t, baseDir, 1, "old-session.log", 365)

	deleted, err := NewCleaner(baseDir, 0).Cleanup()
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if deleted != 0 {
		t.Errorf("deleted = %d, want 0 with retention disabled", deleted)
	}
	if _, err := os.Stat(old); err != nil {
		t.Errorf("transcript should survive with retention disabled: %v", err)
	}
}

func TestCleanup_MissingBaseDir(t *testing.T) {
	deleted, err := NewCleaner(filepath.Join(t.TempDir(), "never-created"), 30).Cleanup()
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if deleted != 0 {
		t.Errorf("deleted = %d, want 0", deleted)
	}
}

func TestCleanup_BoundaryAge(t *testing.T) {
	baseDir := t.TempDir()
	writeTranscript(t, baseDir, 1, "session.log", 10)

	deleted, err := NewCleaner(baseDir, 7).Cleanup()
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1 under 7-day retention", deleted)
	}

	writeTranscript(t, baseDir, 1, "session.log", 10)
	deleted, err = NewCleaner(baseDir, 30).Cleanup()
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if deleted != 0 {
		t.Errorf("deleted = %d, want 0 under 30-day retention", deleted)
	}
}
