// Package provider abstracts the forge hosting the reviewed repositories.
package provider

import "context"

// Provider defines the interface for forge operations.
type Provider interface {
	// Name returns the provider name (github).
	Name() string

	// GetRepository fetches repository metadata.
	GetRepository(ctx context.Context, owner, repo string) (*Repository, error)

	// ListOpenPullRequests returns open pull requests, most recently
	// updated first, including their labels.
	ListOpenPullRequests(ctx context.Context, owner, repo string) ([]PullRequest, error)

	// GetPullRequest fetches a pull request by number.
	GetPullRequest(ctx context.Context, owner, repo string, number int) (*PullRequest, error)

	// RemoveLabel removes a label from a pull request. Removing a label
	// that is already gone is not an error.
	RemoveLabel(ctx context.Context, owner, repo string, number int, label string) error

	// CreateReview publishes a review with inline comments.
	CreateReview(ctx context.Context, owner, repo string, number int, review *ReviewRequest) (*PostedReview, error)

	// AuthenticatedCloneURL returns a clone URL carrying credentials.
	AuthenticatedCloneURL(rawURL string) (string, error)

	// AgentEnv returns environment variables the review agent needs to
	// authenticate against the forge.
	AgentEnv() map[string]string
}
