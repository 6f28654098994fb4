// Package gitremote parses git remote URLs into forge coordinates.
package gitremote

import (
	"regexp"
	"strings"
)

var (
	httpsPattern = regexp.MustCompile(`^https?://github\.com/([^/]+)/([^/]+?)(?:\.git)?/?$`)
	sshPattern   = regexp.MustCompile(`^git@github\.com:([^/]+)/([^/]+?)(?:\.git)?/?$`)
)

// Parse maps a git remote URL to its owner and repository name.
// Both HTTPS and SSH forms are recognized. A trailing ".git" suffix
// and a trailing slash are tolerated. On no match both fields are
// empty; callers must check for that and abort rather than hitting
// the forge API with a malformed repo path.
func Parse(remote string) (owner, repo string) {
	remote = strings.TrimSpace(remote)

	if m := httpsPattern.FindStringSubmatch(remote); m != nil {
		return m[1], m[2]
	}
	if m := sshPattern.FindStringSubmatch(remote); m != nil {
		return m[1], m[2]
	}
	return "", ""
}

// ProjectID derives a stable project identifier from a git remote URL.
// The same remote always maps to the same identifier, so project rows
// can be upserted repeatedly without duplication.
//
//	https://github.com/org/project.git -> github.com/org/project
//	git@github.com:org/project.git     -> github.com/org/project
func ProjectID(remote string) string {
	id := strings.TrimSpace(remote)
	id = strings.TrimPrefix(id, "https://")
	id = strings.TrimPrefix(id, "http://")
	id = strings.TrimPrefix(id, "git@")
	id = strings.TrimSuffix(id, "/")
	id = strings.TrimSuffix(id, ".git")
	id = strings.ReplaceAll(id, ":", "/")
	return id
}
