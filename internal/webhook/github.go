// Package webhook receives GitHub pull_request events and hands
// qualifying ones to the review orchestration asynchronously.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/revue-dev/revue/internal/metrics"
)

// triggerActions are the pull_request actions that can start a review.
var triggerActions = map[string]bool{
	"labeled":     true,
	"opened":      true,
	"synchronize": true,
	"reopened":    true,
}

// PullRequestEvent is a parsed, qualifying pull_request webhook.
type PullRequestEvent struct {
	Action       string
	Number       int
	Title        string
	URL          string
	UpdatedAt    time.Time
	Labels       []string
	RepoFullName string
	CloneURL     string
	RepoHTMLURL  string
}

// HasLabel reports whether the PR carries the given label.
func (e *PullRequestEvent) HasLabel(name string) bool {
	for _, l := range e.Labels {
		if l == name {
			return true
		}
	}
	return false
}

// Processor handles an accepted event after the webhook has been
// acknowledged. It runs on its own goroutine.
type Processor func(event *PullRequestEvent)

// GitHubHandler verifies, filters, and acknowledges GitHub webhooks.
// The heavy work happens after the 202 response so GitHub never times
// out waiting on a clone or an agent run.
type GitHubHandler struct {
	secret   string
	process  Processor
	debounce *Debouncer
}

// NewGitHubHandler creates a handler. An empty secret disables
// signature verification entirely.
func NewGitHubHandler(secret string, process Processor) *GitHubHandler {
	return &GitHubHandler{
		secret:   secret,
		process:  process,
		debounce: NewDebouncer(10 * time.Second),
	}
}

// githubPayload mirrors the fields of the pull_request event we use.
type githubPayload struct {
	Action      string `json:"action"`
	Number      int    `json:"number"`
	PullRequest struct {
		Title     string    `json:"title"`
		HTMLURL   string    `json:"html_url"`
		UpdatedAt time.Time `json:"updated_at"`
		Labels    []struct {
			Name string `json:"name"`
		} `json:"labels"`
	} `json:"pull_request"`
	Repository struct {
		FullName string `json:"full_name"`
		CloneURL string `json:"clone_url"`
		HTMLURL  string `json:"html_url"`
	} `json:"repository"`
}

// ServeHTTP implements http.Handler.
func (h *GitHubHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	metrics.WebhookReceived()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if h.secret != "" {
		signature := r.Header.Get("X-Hub-Signature-256")
		if signature == "" {
			http.Error(w, "missing signature", http.StatusUnauthorized)
			return
		}
		if !h.verifySignature(body, signature) {
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}

	if r.Header.Get("X-GitHub-Event") != "pull_request" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	var payload githubPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "failed to parse payload", http.StatusBadRequest)
		return
	}

	if !triggerActions[payload.Action] {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	event := &PullRequestEvent{
		Action:       payload.Action,
		Number:       payload.Number,
		Title:        payload.PullRequest.Title,
		URL:          payload.PullRequest.HTMLURL,
		UpdatedAt:    payload.PullRequest.UpdatedAt,
		RepoFullName: payload.Repository.FullName,
		CloneURL:     payload.Repository.CloneURL,
		RepoHTMLURL:  payload.Repository.HTMLURL,
	}
	for _, l := range payload.PullRequest.Labels {
		event.Labels = append(event.Labels, l.Name)
	}

	if !h.debounce.ShouldProcess(event) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}

	// Acknowledge before doing anything slow.
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})

	go func() {
		h.process(event)
		metrics.WebhookProcessed()
	}()
}

// verifySignature checks the HMAC-SHA256 signature in constant time.
func (h *GitHubHandler) verifySignature(payload []byte, signature string) bool {
	if !strings.HasPrefix(signature, "sha256=") {
		return false
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(payload)
	expected := mac.Sum(nil)

	return hmac.Equal(sig, expected)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
