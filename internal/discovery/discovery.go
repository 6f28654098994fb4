// Package discovery scans a project's open pull requests and decides
// which ones need a review run.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/revue-dev/revue/internal/gitremote"
	"github.com/revue-dev/revue/internal/provider"
	"github.com/revue-dev/revue/internal/storage"
)

// Forge lists open pull requests for a repository.
type Forge interface {
	ListOpenPullRequests(ctx context.Context, owner, repo string) ([]provider.PullRequest, error)
}

// ReviewLookup is the slice of the store discovery consults.
type ReviewLookup interface {
	LatestReview(projectID string, prNumber int) (*storage.Review, error)
	LatestFinalizedReview(projectID string, prNumber int) (*storage.Review, error)
	GetSession(id string) (*storage.Session, error)
}

// Candidate is one open PR carrying the project's trigger label,
// constructed per discovery cycle and discarded after use.
type Candidate struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Author    string    `json:"author,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Result holds the label-matching PRs and the subset needing a run.
type Result struct {
	Candidates []Candidate
	Pending    []Candidate
}

// Engine classifies a project's open PRs against its review history.
type Engine struct {
	forge Forge
	store ReviewLookup
}

// New creates a discovery Engine.
func New(forge Forge, store ReviewLookup) *Engine {
	return &Engine{forge: forge, store: store}
}

// Discover fetches the project's open PRs, filters by trigger label,
// and splits them into all candidates and the pending subset.
//
// A PR is pending when it has no review yet, or when it was updated
// after its last finalized review. A PR claimed by an in-flight run
// (placeholder review row whose session is still running) is excluded
// from the pending set so concurrent trigger surfaces do not
// double-run it.
func (e *Engine) Discover(ctx context.Context, project *storage.Project) (*Result, error) {
	owner, repo := gitremote.Parse(project.GitRemote)
	if owner == "" || repo == "" {
		return nil, fmt.Errorf("project %s: unparseable git remote %q", project.ID, project.GitRemote)
	}

	prs, err := e.forge.ListOpenPullRequests(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", project.ID, err)
	}

	result := &Result{}
	for i := range prs {
		pr := &prs[i]
		if !pr.HasLabel(project.TriggerLabel) {
			continue
		}

		cand := Candidate{
			Number:    pr.Number,
			Title:     pr.Title,
			URL:       pr.URL,
			Author:    pr.Author,
			UpdatedAt: pr.UpdatedAt,
		}
		result.Candidates = append(result.Candidates, cand)

		pending, err := e.needsReview(project.ID, pr)
		if err != nil {
			return nil, fmt.Errorf("project %s pr %d: %w", project.ID, pr.Number, err)
		}
		if pending {
			result.Pending = append(result.Pending, cand)
		}
	}
	return result, nil
}

func (e *Engine) needsReview(projectID string, pr *provider.PullRequest) (bool, error) {
	latest, err := e.store.LatestReview(projectID, pr.Number)
	if errors.Is(err, storage.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}

	if latest.Pending() {
		sessionID := strings.TrimPrefix(latest.ReviewDir, "pending-")
		sess, err := e.store.GetSession(sessionID)
		if err == nil && sess.Status == storage.SessionRunning {
			return false, nil // claimed by an in-flight run
		}

		// The claim belongs to a failed or reconciled attempt; judge
		// staleness against the last run that actually finished.
		fin, err := e.store.LatestFinalizedReview(projectID, pr.Number)
		if errors.Is(err, storage.ErrNotFound) {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		return pr.UpdatedAt.After(fin.ReviewedAt), nil
	}

	return pr.UpdatedAt.After(latest.ReviewedAt), nil
}
