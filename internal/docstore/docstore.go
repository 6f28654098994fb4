// Package docstore manages the filesystem store of review-guideline
// documents, per-project settings, and agent review artifacts.
//
// Layout under the store root:
//
//	projects/<project-id>/codereview_index.json
//	projects/<project-id>/<root>_codereview.md
//	projects/<project-id>/modules/<module>_codereview.md
//	projects/<project-id>/settings.json
//	reviews/<review-dir>/review_comments.json
package docstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNotFound is returned when a document or index does not exist.
var ErrNotFound = errors.New("not found")

// Index describes a project's generated guideline documents.
type Index struct {
	GeneratedAt    string        `json:"generated_at,omitempty"`
	GitRemote      string        `json:"git_remote,omitempty"`
	RootCodereview string        `json:"root_codereview"`
	Modules        []ModuleEntry `json:"modules"`
}

// ModuleEntry maps a module name to its guideline document.
type ModuleEntry struct {
	Name           string `json:"name"`
	CodereviewFile string `json:"codereview_file"`
}

// ReviewComment is one inline comment in a review artifact.
type ReviewComment struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Severity  string `json:"severity"`
	Category  string `json:"category"`
	Body      string `json:"body"`
}

// ReviewOutput is the structured artifact the agent writes into the
// workspace after a review run.
type ReviewOutput struct {
	PRNumber       int             `json:"pr_number"`
	Repository     string          `json:"repository"`
	Verdict        string          `json:"verdict"`
	OverallSummary string          `json:"overall_summary"`
	Comments       []ReviewComment `json:"comments"`
}

// DiscoveredProject is a project found in the filesystem store.
type DiscoveredProject struct {
	ID          string
	DisplayName string
	GitRemote   string
	StorePath   string
}

// Store is a filesystem-backed document store rooted at a directory.
type Store struct {
	root string
}

// New creates a Store rooted at dir.
func New(dir string) *Store {
	return &Store{root: dir}
}

// ProjectDir returns the store directory for a project.
func (s *Store) ProjectDir(projectID string) string {
	return filepath.Join(s.root, "projects", filepath.FromSlash(projectID))
}

// ReviewsDir returns the directory holding review artifacts.
func (s *Store) ReviewsDir() string {
	return filepath.Join(s.root, "reviews")
}

// ReadIndex reads a project's codereview_index.json.
func (s *Store) ReadIndex(projectID string) (*Index, error) {
	data, err := os.ReadFile(filepath.Join(s.ProjectDir(projectID), "codereview_index.json"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading index: %w", err)
	}

	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("parsing index: %w", err)
	}
	return &idx, nil
}

// documentPath resolves a document's file path through the index.
// moduleName is nil for the project's root document.
func (s *Store) documentPath(projectID string, moduleName *string) (string, error) {
	idx, err := s.ReadIndex(projectID)
	if err != nil {
		return "", err
	}

	if moduleName == nil {
		return filepath.Join(s.ProjectDir(projectID), idx.RootCodereview), nil
	}

	for _, m := range idx.Modules {
		if m.Name == *moduleName {
			return filepath.Join(s.ProjectDir(projectID), m.CodereviewFile), nil
		}
	}
	return "", fmt.Errorf("module %q: %w", *moduleName, ErrNotFound)
}

// ReadDocument reads a guideline document's markdown content.
func (s *Store) ReadDocument(projectID string, moduleName *string) (string, error) {
	path, err := s.documentPath(projectID, moduleName)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading document: %w", err)
	}
	return string(data), nil
}

// WriteDocument writes a guideline document and returns its path.
func (s *Store) WriteDocument(projectID string, moduleName *string, content string) (string, error) {
	path, err := s.documentPath(projectID, moduleName)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating document directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("writing document: %w", err)
	}
	return path, nil
}

// ReadSettings reads a project's settings.json, or ErrNotFound.
func (s *Store) ReadSettings(projectID string) (map[string]any, error) {
	data, err := os.ReadFile(filepath.Join(s.ProjectDir(projectID), "settings.json"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}

	var settings map[string]any
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parsing settings: %w", err)
	}
	return settings, nil
}

// WriteSettings writes a project's settings.json.
func (s *Store) WriteSettings(projectID string, settings map[string]any) error {
	dir := s.ProjectDir(projectID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating project directory: %w", err)
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "settings.json"), data, 0644); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	return nil
}

// ReadReviewOutput reads the review_comments.json artifact from a
// directory (either a workspace or a saved review dir).
func ReadReviewOutput(dir string) (*ReviewOutput, error) {
	data, err := os.ReadFile(filepath.Join(dir, "review_comments.json"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading review output: %w", err)
	}

	var out ReviewOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parsing review output: %w", err)
	}
	return &out, nil
}

// DiscoverProjects walks the projects directory and returns every
// project that has a generated index, so the database can be synced
// with what exists on disk.
func (s *Store) DiscoverProjects() ([]DiscoveredProject, error) {
	projectsDir := filepath.Join(s.root, "projects")
	var out []DiscoveredProject

	err := filepath.WalkDir(projectsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if d.IsDir() || d.Name() != "codereview_index.json" {
			return nil
		}

		dir := filepath.Dir(path)
		rel, err := filepath.Rel(projectsDir, dir)
		if err != nil {
			return nil
		}
		id := filepath.ToSlash(rel)

		remote := "https://" + id + ".git"
		if idx, err := s.ReadIndex(id); err == nil && idx.GitRemote != "" {
			remote = idx.GitRemote
		}

		out = append(out, DiscoveredProject{
			ID:          id,
			DisplayName: filepath.Base(dir),
			GitRemote:   remote,
			StorePath:   dir,
		})
		return fs.SkipDir
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("walking projects dir: %w", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// RootDocumentName returns the conventional root document filename for
// a project id, e.g. "widgets_codereview.md" for github.com/acme/widgets.
func RootDocumentName(projectID string) string {
	parts := strings.Split(projectID, "/")
	return parts[len(parts)-1] + "_codereview.md"
}
