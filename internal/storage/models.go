package storage

import "time"

// Project is a tracked repository.
type Project struct {
	ID                string     `json:"id"`
	DisplayName       string     `json:"display_name"`
	GitRemote         string     `json:"git_remote"`
	MainBranch        string     `json:"main_branch"`
	AutoReviewEnabled bool       `json:"auto_review_enabled"`
	TriggerLabel      string     `json:"review_trigger_label"`
	ReviewModel       string     `json:"review_model"`
	PollingEnabled    bool       `json:"polling_enabled"`
	LastPolledAt      *time.Time `json:"last_polled_at,omitempty"`
	StorePath         string     `json:"store_path"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// ProjectSummary is a project with aggregate review info for listings.
type ProjectSummary struct {
	Project
	ReviewCount    int        `json:"review_count"`
	LastReviewedAt *time.Time `json:"last_review_date,omitempty"`
}

// Verdict is the overall outcome of a review.
type Verdict string

const (
	VerdictApprove        Verdict = "approve"
	VerdictRequestChanges Verdict = "request_changes"
	VerdictComment        Verdict = "comment"
)

// ParseVerdict converts a string to a Verdict, defaulting to comment.
func ParseVerdict(s string) Verdict {
	switch Verdict(s) {
	case VerdictApprove, VerdictRequestChanges, VerdictComment:
		return Verdict(s)
	default:
		return VerdictComment
	}
}

// Review is a persisted record of one review attempt. A row inserted
// with a "pending-<session>" review_dir acts as a claim that a run is
// in flight for this PR; it is finalized once the agent completes.
type Review struct {
	ID             string    `json:"id"`
	ProjectID      string    `json:"project_id"`
	PRNumber       int       `json:"pr_number"`
	PRTitle        string    `json:"pr_title"`
	PRURL          string    `json:"pr_url"`
	Repository     string    `json:"repository"`
	ReviewedAt     time.Time `json:"reviewed_at"`
	Verdict        Verdict   `json:"verdict"`
	CommentCount   int       `json:"comment_count"`
	ReviewDir      string    `json:"review_dir"`
	ReviewOutput   string    `json:"review_output,omitempty"`
	GitHubReviewID *int64    `json:"github_review_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Pending reports whether this review row is a placeholder claim for
// a run that has not finished.
func (r *Review) Pending() bool {
	return len(r.ReviewDir) > 8 && r.ReviewDir[:8] == "pending-"
}

// SessionStatus is the lifecycle state of an agent session.
type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionError     SessionStatus = "error"
)

// Session correlates one agent invocation with a project and status.
type Session struct {
	ID          string        `json:"id"`
	ProjectID   string        `json:"project_id,omitempty"`
	Type        string        `json:"type"`
	Status      SessionStatus `json:"status"`
	Progress    string        `json:"progress,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// DocumentVersion is one audit-trail entry for a guideline document.
type DocumentVersion struct {
	ID         int64     `json:"id"`
	ProjectID  string    `json:"project_id"`
	ModuleName *string   `json:"module_name,omitempty"`
	Content    string    `json:"content"`
	ModifiedAt time.Time `json:"modified_at"`
	ModifiedBy string    `json:"modified_by"`
	Version    int       `json:"version"`
}
