package workspace

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// MirrorCache keeps bare mirror clones so repeated reviews of the same
// repository don't refetch full history on every run.
type MirrorCache struct {
	baseDir string
	mu      sync.Mutex
}

// NewMirrorCache creates a MirrorCache rooted at baseDir.
func NewMirrorCache(baseDir string) *MirrorCache {
	return &MirrorCache{baseDir: baseDir}
}

// mirrorKey derives a filesystem path segment from a clone URL,
// ignoring credentials and the .git suffix.
func mirrorKey(cloneURL string) string {
	if parsed, err := url.Parse(cloneURL); err == nil && parsed.Host != "" {
		p := strings.TrimSuffix(strings.Trim(parsed.Path, "/"), ".git")
		return filepath.Join(parsed.Host, filepath.FromSlash(p))
	}
	key := strings.TrimSuffix(cloneURL, ".git")
	key = strings.NewReplacer("://", "/", ":", "/", "@", "/").Replace(key)
	return filepath.FromSlash(strings.Trim(key, "/"))
}

// Path returns where the mirror for a clone URL lives.
func (c *MirrorCache) Path(cloneURL string) string {
	return filepath.Join(c.baseDir, mirrorKey(cloneURL)+".git")
}

// Ensure creates or refreshes the mirror for cloneURL and returns its
// path. The mirror is only ever used as a local object reference, so a
// failed refresh leaves a usable, merely stale, mirror behind.
func (c *MirrorCache) Ensure(ctx context.Context, cloneURL string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	dir := c.Path(cloneURL)

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(dir), 0755); err != nil {
			return "", fmt.Errorf("creating mirror directory: %w", err)
		}
		cmd := exec.CommandContext(ctx, "git", "clone", "--mirror", cloneURL, dir)
		if out, err := cmd.CombinedOutput(); err != nil {
			os.RemoveAll(dir)
			return "", fmt.Errorf("mirror clone: %w: %s", err, redact(string(out), cloneURL))
		}
		return dir, nil
	}

	cmd := exec.CommandContext(ctx, "git", "-C", dir, "fetch", "--prune", "origin")
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("mirror fetch: %w: %s", err, redact(string(out), cloneURL))
	}
	return dir, nil
}
