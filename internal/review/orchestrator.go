// Package review orchestrates review runs for pull requests: claim,
// clone, agent run, output persistence, and trigger-label removal.
package review

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/revue-dev/revue/internal/agent"
	"github.com/revue-dev/revue/internal/discovery"
	"github.com/revue-dev/revue/internal/docstore"
	"github.com/revue-dev/revue/internal/gitremote"
	"github.com/revue-dev/revue/internal/logging"
	"github.com/revue-dev/revue/internal/metrics"
	"github.com/revue-dev/revue/internal/storage"
	"github.com/revue-dev/revue/internal/workspace"
)

// Store is the slice of the review store the orchestrator writes.
type Store interface {
	InsertSession(id, projectID, sessionType string) error
	SetSessionStatus(id string, status storage.SessionStatus, progress string) error
	InsertPendingReview(r *storage.Review) error
	FinalizeReview(id string, verdict storage.Verdict, commentCount int, reviewDir, output string) error
}

// Forge is the slice of the provider the orchestrator calls.
type Forge interface {
	RemoveLabel(ctx context.Context, owner, repo string, number int, label string) error
	AuthenticatedCloneURL(rawURL string) (string, error)
	AgentEnv() map[string]string
}

// Workspaces acquires throwaway clones.
type Workspaces interface {
	Acquire(ctx context.Context, cloneURL, branch string) (*workspace.Workspace, func(), error)
}

// Config tunes one Orchestrator.
type Config struct {
	ReviewCommand string        // agent subcommand, default "codereview"
	AgentTimeout  time.Duration // 0 means no timeout
	ReviewsDir    string        // where saved review artifacts live
}

// Orchestrator drives the per-PR review state machine. Batches are
// strictly sequential; failures are isolated per PR.
type Orchestrator struct {
	store       Store
	forge       Forge
	runner      agent.Runner
	workspaces  Workspaces
	transcripts *logging.Writer // optional
	cfg         Config
}

// New creates an Orchestrator. transcripts may be nil to skip
// transcript files.
func New(store Store, forge Forge, runner agent.Runner, workspaces Workspaces, transcripts *logging.Writer, cfg Config) *Orchestrator {
	if cfg.ReviewCommand == "" {
		cfg.ReviewCommand = "codereview"
	}
	return &Orchestrator{
		store:       store,
		forge:       forge,
		runner:      runner,
		workspaces:  workspaces,
		transcripts: transcripts,
		cfg:         cfg,
	}
}

// RunResult describes the outcome of one successful (or partially
// successful) review run.
type RunResult struct {
	SessionID    string
	ReviewID     string
	Saved        bool // false when the agent ran but produced no artifact
	Verdict      storage.Verdict
	CommentCount int
}

// claim holds the rows inserted before risky work starts.
type claim struct {
	sessionID string
	reviewID  string
	owner     string
	repo      string
}

// ReviewPR runs the full state machine for one PR and blocks until it
// finishes. The returned error means the run FAILED; a nil error with
// result.Saved == false means the agent ran but produced no output.
func (o *Orchestrator) ReviewPR(ctx context.Context, project *storage.Project, pr discovery.Candidate, sink EventSink) (*RunResult, error) {
	c, err := o.claimPR(project, pr)
	if err != nil {
		return nil, err
	}
	return o.run(ctx, project, pr, c, sink)
}

// StartReview claims a PR and runs the rest of the state machine in the
// background, returning the session id immediately.
func (o *Orchestrator) StartReview(project *storage.Project, pr discovery.Candidate, sink EventSink) (string, error) {
	c, err := o.claimPR(project, pr)
	if err != nil {
		return "", err
	}

	go func() {
		if _, err := o.run(context.Background(), project, pr, c, sink); err != nil {
			log.Printf("background review of %s/%s#%d failed: %v", c.owner, c.repo, pr.Number, err)
		}
	}()
	return c.sessionID, nil
}

// claimPR inserts the session row and the placeholder review row before
// the clone starts, so concurrent trigger surfaces see the PR as taken.
func (o *Orchestrator) claimPR(project *storage.Project, pr discovery.Candidate) (*claim, error) {
	owner, repo := gitremote.Parse(project.GitRemote)
	if owner == "" || repo == "" {
		return nil, fmt.Errorf("project %s: unparseable git remote %q", project.ID, project.GitRemote)
	}

	sessionID := uuid.NewString()
	if err := o.store.InsertSession(sessionID, project.ID, "review"); err != nil {
		return nil, fmt.Errorf("claiming pr %d: %w", pr.Number, err)
	}

	reviewID := storage.ReviewID(project.ID, pr.Number)
	err := o.store.InsertPendingReview(&storage.Review{
		ID:         reviewID,
		ProjectID:  project.ID,
		PRNumber:   pr.Number,
		PRTitle:    pr.Title,
		PRURL:      pr.URL,
		Repository: owner + "/" + repo,
		ReviewDir:  "pending-" + sessionID,
	})
	if err != nil {
		o.failSession(sessionID, "claim failed: "+err.Error())
		return nil, fmt.Errorf("claiming pr %d: %w", pr.Number, err)
	}

	metrics.ReviewTriggered()
	return &claim{sessionID: sessionID, reviewID: reviewID, owner: owner, repo: repo}, nil
}

func (o *Orchestrator) run(ctx context.Context, project *storage.Project, pr discovery.Candidate, c *claim, sink EventSink) (*RunResult, error) {
	repoSlug := c.owner + "/" + c.repo
	transcript := o.openTranscript(c, pr.Number)

	fail := func(stage string, err error) (*RunResult, error) {
		wrapped := fmt.Errorf("%s: %w", stage, err)
		o.failSession(c.sessionID, wrapped.Error())
		if errors.Is(err, agent.ErrTimeout) {
			metrics.ReviewTimedOut()
		} else {
			metrics.ReviewFailed()
		}
		sink.emit(EventReviewError, map[string]any{
			"pr": pr.Number, "session_id": c.sessionID, "error": wrapped.Error(),
		})
		o.appendTranscript(transcript, "FAILED: "+wrapped.Error())
		log.Printf("review %s#%d: %v", repoSlug, pr.Number, wrapped)
		return nil, wrapped
	}

	// CLONING
	sink.emit(EventStatus, map[string]any{
		"pr": pr.Number, "session_id": c.sessionID, "message": "cloning " + repoSlug,
	})
	o.appendTranscript(transcript, "cloning "+repoSlug)

	cloneURL, err := o.forge.AuthenticatedCloneURL(project.GitRemote)
	if err != nil {
		return fail("resolving clone url", err)
	}
	ws, release, err := o.workspaces.Acquire(ctx, cloneURL, "")
	if err != nil {
		return fail("cloning", err)
	}
	defer release()

	// RUNNING_AGENT
	sink.emit(EventStatus, map[string]any{
		"pr": pr.Number, "session_id": c.sessionID, "message": "running review agent",
	})
	o.appendTranscript(transcript, "running review agent")

	env := o.forge.AgentEnv()
	if project.ReviewModel != "" {
		if env == nil {
			env = map[string]string{}
		}
		env["REVIEW_MODEL"] = project.ReviewModel
	}

	err = o.runner.Run(ctx, agent.Request{
		SessionID: c.sessionID,
		WorkDir:   ws.Dir,
		Command:   o.cfg.ReviewCommand,
		Prompt:    fmt.Sprintf("%d %s", pr.Number, repoSlug),
		Env:       env,
		Timeout:   o.cfg.AgentTimeout,
	}, func(line string) {
		sink.emit(EventCLIOutput, map[string]any{"pr": pr.Number, "line": line})
		o.appendTranscript(transcript, line)
	})
	if err != nil {
		return fail("running agent", err)
	}

	// SAVING_OUTPUT
	out, err := docstore.ReadReviewOutput(ws.Dir)
	if err != nil {
		// Partial success: the agent ran but left no usable artifact.
		// Recorded distinctly from a failure; label stays for a re-run.
		log.Printf("review %s#%d: no review output artifact: %v", repoSlug, pr.Number, err)
		sink.emit(EventInfo, map[string]any{
			"pr": pr.Number, "message": "agent completed without a review output artifact",
		})
		o.appendTranscript(transcript, "completed without review output artifact")
		o.completeSession(c.sessionID, "completed: no review output artifact")
		metrics.ReviewCompleted()
		return &RunResult{SessionID: c.sessionID, ReviewID: c.reviewID}, nil
	}

	reviewDir, raw, err := o.saveArtifact(ws.Dir, c.reviewID)
	if err != nil {
		return fail("saving output", err)
	}

	verdict := storage.ParseVerdict(out.Verdict)
	if err := o.store.FinalizeReview(c.reviewID, verdict, len(out.Comments), reviewDir, raw); err != nil {
		return fail("saving output", err)
	}
	sink.emit(EventReviewSaved, map[string]any{
		"pr": pr.Number, "review_id": c.reviewID,
		"verdict": string(verdict), "comment_count": len(out.Comments),
	})

	// REMOVING_LABEL: best effort; a failure here never reverts DONE.
	if err := o.forge.RemoveLabel(ctx, c.owner, c.repo, pr.Number, project.TriggerLabel); err != nil {
		log.Printf("review %s#%d: removing label %q: %v", repoSlug, pr.Number, project.TriggerLabel, err)
		sink.emit(EventInfo, map[string]any{
			"pr": pr.Number, "message": "review saved but label removal failed: " + err.Error(),
		})
	}

	// DONE
	o.completeSession(c.sessionID, "done")
	o.appendTranscript(transcript, fmt.Sprintf("done: verdict=%s comments=%d", verdict, len(out.Comments)))
	metrics.ReviewCompleted()

	return &RunResult{
		SessionID:    c.sessionID,
		ReviewID:     c.reviewID,
		Saved:        true,
		Verdict:      verdict,
		CommentCount: len(out.Comments),
	}, nil
}

// saveArtifact copies the agent's review_comments.json from the
// workspace into the persistent reviews directory.
func (o *Orchestrator) saveArtifact(wsDir, reviewID string) (dir, raw string, err error) {
	data, err := os.ReadFile(filepath.Join(wsDir, "review_comments.json"))
	if err != nil {
		return "", "", fmt.Errorf("reading artifact: %w", err)
	}

	dir = filepath.Join(o.cfg.ReviewsDir, reviewID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", fmt.Errorf("creating review dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "review_comments.json"), data, 0644); err != nil {
		return "", "", fmt.Errorf("writing artifact: %w", err)
	}
	return dir, string(data), nil
}

// BatchSummary totals one sequential batch.
type BatchSummary struct {
	Triggered int `json:"triggered"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// ReviewBatch runs the pending PRs one after another. A PR's failure
// never aborts the rest; a cancelled context stops before the next PR.
func (o *Orchestrator) ReviewBatch(ctx context.Context, project *storage.Project, prs []discovery.Candidate, sink EventSink) BatchSummary {
	var summary BatchSummary

	for _, pr := range prs {
		if ctx.Err() != nil {
			sink.emit(EventError, map[string]any{"error": "batch cancelled"})
			break
		}

		sink.emit(EventPRStatus, map[string]any{"pr": pr.Number, "status": "starting"})
		summary.Triggered++

		result, err := o.ReviewPR(ctx, project, pr, sink)
		if err != nil {
			summary.Failed++
			continue
		}

		summary.Completed++
		sink.emit(EventReviewTriggered, map[string]any{
			"pr": pr.Number, "session_id": result.SessionID, "review_id": result.ReviewID,
		})
	}
	return summary
}

func (o *Orchestrator) failSession(sessionID, progress string) {
	if err := o.store.SetSessionStatus(sessionID, storage.SessionError, progress); err != nil {
		log.Printf("warning: marking session %s failed: %v", sessionID, err)
	}
}

func (o *Orchestrator) completeSession(sessionID, progress string) {
	if err := o.store.SetSessionStatus(sessionID, storage.SessionCompleted, progress); err != nil {
		log.Printf("warning: marking session %s completed: %v", sessionID, err)
	}
}

func (o *Orchestrator) openTranscript(c *claim, prNumber int) string {
	if o.transcripts == nil {
		return ""
	}
	path, err := o.transcripts.Create(logging.Transcript{
		SessionID: c.sessionID,
		RepoOwner: c.owner,
		RepoName:  c.repo,
		PRNumber:  prNumber,
		Timestamp: time.Now(),
	})
	if err != nil {
		log.Printf("warning: creating transcript: %v", err)
		return ""
	}
	return path
}

func (o *Orchestrator) appendTranscript(path, line string) {
	if o.transcripts == nil || path == "" {
		return
	}
	if err := o.transcripts.AppendLine(path, line); err != nil {
		log.Printf("warning: appending transcript: %v", err)
	}
}
