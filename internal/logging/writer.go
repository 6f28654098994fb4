// Package logging stores agent transcript files with retention cleanup.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Transcript contains metadata for creating a transcript file.
type Transcript struct {
	SessionID string
	RepoOwner string
	RepoName  string
	PRNumber  int
	Timestamp time.Time
}

// Writer manages transcript files organized by repository and PR.
type Writer struct {
	baseDir string
}

// NewWriter creates a new Writer with the specified base directory.
func NewWriter(baseDir string) *Writer {
	return &Writer{baseDir: baseDir}
}

// Create creates a new transcript file and returns the path.
// Directory structure: baseDir/owner/repo/prNumber/timestamp-sessionID.log
func (w *Writer) Create(entry Transcript) (string, error) {
	dir := filepath.Join(
		w.baseDir,
		entry.RepoOwner,
		entry.RepoName,
		fmt.Sprint(entry.PRNumber),
	)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating transcript directory: %w", err)
	}

	filename := fmt.Sprintf("%s-%s.log",
		entry.Timestamp.Format("2006-01-02T15-04-05"),
		entry.SessionID,
	)

	path := filepath.Join(dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating transcript file: %w", err)
	}
	f.Close()

	return path, nil
}

// Append writes data to the specified transcript file.
func (w *Writer) Append(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(data)
	return err
}

// AppendLine writes one line of agent output with a trailing newline.
func (w *Writer) AppendLine(path, line string) error {
	return w.Append(path, []byte(line+"\n"))
}
