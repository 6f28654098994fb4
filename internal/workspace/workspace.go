// Package workspace prepares throwaway repository clones for agent runs.
package workspace

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Workspace is a cloned repository on disk.
type Workspace struct {
	Dir string
}

// Manager creates and disposes of workspaces under a base directory.
type Manager struct {
	baseDir string
	mirrors *MirrorCache
}

// NewManager creates a Manager. An empty baseDir means the system
// temp directory.
func NewManager(baseDir string) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	return &Manager{baseDir: baseDir}
}

// WithMirrors makes Acquire borrow objects from a local mirror cache,
// keeping clones shallow on the network even for big repositories.
func (m *Manager) WithMirrors(mirrors *MirrorCache) *Manager {
	m.mirrors = mirrors
	return m
}

// Acquire shallow-clones cloneURL into a fresh directory and returns the
// workspace plus a release function. The release function always removes
// the directory and must be called regardless of how the run ends.
// branch may be empty to clone the default branch.
func (m *Manager) Acquire(ctx context.Context, cloneURL, branch string) (*Workspace, func(), error) {
	dir := filepath.Join(m.baseDir, "revue-review-"+uuid.NewString())
	release := func() {
		os.RemoveAll(dir)
	}

	args := []string{"clone", "--depth", "1", "--single-branch"}
	if branch != "" {
		args = append(args, "--branch", branch)
	}
	if m.mirrors != nil {
		if mirror, err := m.mirrors.Ensure(ctx, cloneURL); err == nil {
			args = append(args, "--reference-if-able", mirror)
		}
		// A mirror failure is not fatal; the clone just goes to the network.
	}
	args = append(args, cloneURL, dir)

	cmd := exec.CommandContext(ctx, "git", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("git clone: %w: %s", err, redact(string(out), cloneURL))
	}

	return &Workspace{Dir: dir}, release, nil
}

// redact strips credentials from clone URLs echoed in git output so
// tokens never reach logs or error messages.
func redact(out, cloneURL string) string {
	parsed, err := url.Parse(cloneURL)
	if err != nil || parsed.User == nil {
		return strings.TrimSpace(out)
	}
	clean := *parsed
	clean.User = nil
	return strings.TrimSpace(strings.ReplaceAll(out, cloneURL, clean.String()))
}
