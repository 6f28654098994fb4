package docstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func seedProject(t *testing.T, root, projectID string) {
	t.Helper()
	dir := filepath.Join(root, "projects", filepath.FromSlash(projectID))
	if err := os.MkdirAll(filepath.Join(dir, "modules"), 0755); err != nil {
		t.Fatal(err)
	}

	index := `{
  "generated_at": "2026-08-01T00:00:00Z",
  "root_codereview": "widgets_codereview.md",
  "modules": [
    {"name": "auth", "codereview_file": "modules/auth_codereview.md"}
  ]
}`
	if err := os.WriteFile(filepath.Join(dir, "codereview_index.json"), []byte(index), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "widgets_codereview.md"), []byte("# Root"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "modules", "auth_codereview.md"), []byte("# Auth"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestReadIndex(t *testing.T) {
	root := t.TempDir()
	seedProject(t, root, "github.com/acme/widgets")
	s := New(root)

	idx, err := s.ReadIndex("github.com/acme/widgets")
	if err != nil {
		t.Fatalf("ReadIndex() error = %v", err)
	}
	if idx.RootCodereview != "widgets_codereview.md" {
		t.Errorf("RootCodereview = %q", idx.RootCodereview)
	}
	if len(idx.Modules) != 1 || idx.Modules[0].Name != "auth" {
		t.Errorf("Modules = %+v", idx.Modules)
	}
}

func TestReadIndex_NotFound(t *testing.T) {
	s := New(t.TempDir())
	if _, err := s.ReadIndex("github.com/none/missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ReadIndex() error = %v, want ErrNotFound", err)
	}
}

func TestReadWriteDocument(t *testing.T) {
	root := t.TempDir()
	seedProject(t, root, "github.com/acme/widgets")
	s := New(root)

	content, err := s.ReadDocument("github.com/acme/widgets", nil)
	if err != nil {
		t.Fatalf("ReadDocument(root) error = %v", err)
	}
	if content != "# Root" {
		t.Errorf("root document = %q", content)
	}

	module := "auth"
	content, err = s.ReadDocument("github.com/acme/widgets", &module)
	if err != nil {
		t.Fatalf("ReadDocument(auth) error = %v", err)
	}
	if content != "# Auth" {
		t.Errorf("auth document = %q", content)
	}

	if _, err := s.WriteDocument("github.com/acme/widgets", &module, "# Auth v2"); err != nil {
		t.Fatalf("WriteDocument() error = %v", err)
	}
	content, _ = s.ReadDocument("github.com/acme/widgets", &module)
	if content != "# Auth v2" {
		t.Errorf("auth document after write = %q", content)
	}

	missing := "nonexistent"
	if _, err := s.ReadDocument("github.com/acme/widgets", &missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("ReadDocument(missing module) error = %v, want ErrNotFound", err)
	}
}

func TestSettings(t *testing.T) {
	s := New(t.TempDir())

	if _, err := s.ReadSettings("github.com/acme/widgets"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ReadSettings() error = %v, want ErrNotFound", err)
	}

	in := map[string]any{"review_model": "gpt-5", "max_diff_lines": float64(5000)}
	if err := s.WriteSettings("github.com/acme/widgets", in); err != nil {
		t.Fatalf("WriteSettings() error = %v", err)
	}

	got, err := s.ReadSettings("github.com/acme/widgets")
	if err != nil {
		t.Fatalf("ReadSettings() error = %v", err)
	}
	if got["review_model"] != "gpt-5" {
		t.Errorf("review_model = %v", got["review_model"])
	}
}

func TestReadReviewOutput(t *testing.T) {
	dir := t.TempDir()
	artifact := `{
  "pr_number": 42,
  "repository": "acme/widgets",
  "verdict": "approve",
  "overall_summary": "Looks good",
  "comments": [
    {"path": "main.go", "start_line": 1, "end_line": 3, "severity": "LOW", "category": "style", "body": "nit"},
    {"path": "util.go", "start_line": 9, "end_line": 9, "severity": "MEDIUM", "category": "bug", "body": "off by one"}
  ]
}`
	if err := os.WriteFile(filepath.Join(dir, "review_comments.json"), []byte(artifact), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := ReadReviewOutput(dir)
	if err != nil {
		t.Fatalf("ReadReviewOutput() error = %v", err)
	}
	if out.Verdict != "approve" || len(out.Comments) != 2 {
		t.Errorf("got verdict %q with %d comments", out.Verdict, len(out.Comments))
	}
}

func TestReadReviewOutput_Missing(t *testing.T) {
	if _, err := ReadReviewOutput(t.TempDir()); !errors.Is(err, ErrNotFound) {
		t.Errorf("ReadReviewOutput() error = %v, want ErrNotFound", err)
	}
}

func TestReadReviewOutput_Corrupt(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "review_comments.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadReviewOutput(dir); err == nil {
		t.Error("ReadReviewOutput() expected error for corrupt artifact")
	}
}

func TestDiscoverProjects(t *testing.T) {
	root := t.TempDir()
	seedProject(t, root, "github.com/acme/widgets")
	seedProject(t, root, "github.com/acme/gadgets")
	// A directory without an index is not a project.
	os.MkdirAll(filepath.Join(root, "projects", "github.com", "acme", "empty"), 0755)

	s := New(root)
	projects, err := s.DiscoverProjects()
	if err != nil {
		t.Fatalf("DiscoverProjects() error = %v", err)
	}
	if len(projects) != 2 {
		t.Fatalf("got %d projects, want 2", len(projects))
	}
	if projects[0].ID != "github.com/acme/gadgets" {
		t.Errorf("projects[0].ID = %q", projects[0].ID)
	}
	if projects[1].GitRemote != "https://github.com/acme/widgets.git" {
		t.Errorf("GitRemote = %q", projects[1].GitRemote)
	}
}

func TestDiscoverProjects_EmptyStore(t *testing.T) {
	s := New(t.TempDir())
	projects, err := s.DiscoverProjects()
	if err != nil {
		t.Fatalf("DiscoverProjects() error = %v", err)
	}
	if len(projects) != 0 {
		t.Errorf("got %d projects, want 0", len(projects))
	}
}

func TestRootDocumentName(t *testing.T) {
	if got := RootDocumentName("github.com/acme/widgets"); got != "widgets_codereview.md" {
		t.Errorf("RootDocumentName() = %q", got)
	}
}
