package provider

import "time"

// PullRequest represents an open pull request on the forge.
type PullRequest struct {
	ID           int
	Number       int
	Title        string
	Description  string
	SourceBranch string
	TargetBranch string
	HeadSHA      string
	State        string // open, closed, merged
	Draft        bool
	Author       string
	URL          string
	Labels       []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasLabel reports whether the pull request carries the given label.
func (pr *PullRequest) HasLabel(name string) bool {
	for _, l := range pr.Labels {
		if l == name {
			return true
		}
	}
	return false
}

// ReviewComment is an inline comment anchored to a file range.
type ReviewComment struct {
	Path      string
	StartLine int // 0 for single-line comments
	Line      int
	Body      string
}

// ReviewRequest is a review to publish on a pull request.
type ReviewRequest struct {
	Body     string
	Event    string // APPROVE, REQUEST_CHANGES, COMMENT
	Comments []ReviewComment
}

// PostedReview identifies a review after it has been published.
type PostedReview struct {
	ID  int64
	URL string
}

// Repository represents a git repository.
type Repository struct {
	ID            int
	Name          string
	FullName      string // owner/repo
	CloneURL      string
	SSHURL        string
	DefaultBranch string
}
