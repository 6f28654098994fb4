package logging

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Cleaner enforces the retention policy on stored agent transcripts.
type Cleaner struct {
	baseDir       string
	retentionDays int
}

// NewCleaner creates a Cleaner for the transcript tree at baseDir.
// A retention of <= 0 days disables cleanup entirely.
func NewCleaner(baseDir string, retentionDays int) *Cleaner {
	return &Cleaner{baseDir: baseDir, retentionDays: retentionDays}
}

// Cleanup deletes transcripts older than the retention period and prunes
// the owner/repo/pr directories they leave empty. It returns how many
// transcript files were removed.
func (c *Cleaner) Cleanup() (int, error) {
	if c.retentionDays <= 0 {
		return 0, nil
	}

	threshold := time.Now().AddDate(0, 0, -c.retentionDays)
	var deleted int

	err := filepath.WalkDir(c.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(d.Name(), ".log") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(threshold) {
			if os.Remove(path) == nil {
				deleted++
			}
		}
		return nil
	})
	if err != nil {
		return deleted, err
	}

	c.pruneEmptyDirs()
	return deleted, nil
}

// pruneEmptyDirs removes directories emptied by transcript deletion.
// Removing a pr directory can empty its repo directory in turn, so it
// keeps passing until a pass removes nothing.
func (c *Cleaner) pruneEmptyDirs() {
	for {
		removedAny := false
		filepath.WalkDir(c.baseDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || !d.IsDir() || path == c.baseDir {
				return nil
			}
			entries, _ := os.ReadDir(path)
			if len(entries) == 0 && os.Remove(path) == nil {
				removedAny = true
			}
			return nil
		})
		if !removedAny {
			return
		}
	}
}
