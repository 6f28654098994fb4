package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

const prPayload = `{
  "action": "labeled",
  "number": 42,
  "pull_request": {
    "title": "Add widget cache",
    "html_url": "https://github.com/acme/widgets/pull/42",
    "updated_at": "2026-08-01T12:00:00Z",
    "labels": [{"name": "ai_codereview"}, {"name": "enhancement"}]
  },
  "repository": {
    "full_name": "acme/widgets",
    "clone_url": "https://github.com/acme/widgets.git",
    "html_url": "https://github.com/acme/widgets"
  }
}`

func sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// collector buffers processed events for assertions.
type collector struct {
	mu     sync.Mutex
	events []*PullRequestEvent
	seen   chan struct{}
}

func newCollector() *collector {
	return &collector{seen: make(chan struct{}, 16)}
}

func (c *collector) process(e *PullRequestEvent) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
	c.seen <- struct{}{}
}

func (c *collector) waitOne(t *testing.T) *PullRequestEvent {
	t.Helper()
	select {
	case <-c.seen:
	case <-time.After(5 * time.Second):
		t.Fatal("event never processed")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[len(c.events)-1]
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func post(h http.Handler, payload string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", strings.NewReader(payload))
	req.Header.Set("X-GitHub-Event", "pull_request")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestWebhook_ValidSignature(t *testing.T) {
	c := newCollector()
	h := NewGitHubHandler("secret", c.process)

	rec := post(h, prPayload, map[string]string{
		"X-Hub-Signature-256": sign("secret", prPayload),
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}

	event := c.waitOne(t)
	if event.Number != 42 || event.RepoFullName != "acme/widgets" {
		t.Errorf("event = %+v", event)
	}
	if !event.HasLabel("ai_codereview") {
		t.Errorf("labels = %v", event.Labels)
	}
}

func TestWebhook_InvalidSignature(t *testing.T) {
	c := newCollector()
	h := NewGitHubHandler("secret", c.process)

	rec := post(h, prPayload, map[string]string{
		"X-Hub-Signature-256": sign("wrong-secret", prPayload),
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if c.count() != 0 {
		t.Error("event with bad signature must never be processed")
	}
}

func TestWebhook_MissingSignature(t *testing.T) {
	c := newCollector()
	h := NewGitHubHandler("secret", c.process)

	rec := post(h, prPayload, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if c.count() != 0 {
		t.Error("unsigned event must never be processed")
	}
}

func TestWebhook_NoSecretSkipsVerification(t *testing.T) {
	c := newCollector()
	h := NewGitHubHandler("", c.process)

	rec := post(h, prPayload, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 with no secret configured", rec.Code)
	}
	c.waitOne(t)
}

func TestWebhook_IgnoredAction(t *testing.T) {
	c := newCollector()
	h := NewGitHubHandler("", c.process)

	payload := strings.Replace(prPayload, `"labeled"`, `"closed"`, 1)
	rec := post(h, payload, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for ignored action", rec.Code)
	}
	if c.count() != 0 {
		t.Error("closed action should not be processed")
	}
}

func TestWebhook_TriggerActions(t *testing.T) {
	for _, action := range []string{"labeled", "opened", "synchronize", "reopened"} {
		c := newCollector()
		h := NewGitHubHandler("", c.process)

		payload := strings.Replace(prPayload, `"labeled"`, `"`+action+`"`, 1)
		rec := post(h, payload, nil)
		if rec.Code != http.StatusAccepted {
			t.Errorf("action %s: status = %d, want 202", action, rec.Code)
			continue
		}
		if got := c.waitOne(t); got.Action != action {
			t.Errorf("action = %q, want %q", got.Action, action)
		}
	}
}

func TestWebhook_NonPullRequestEvent(t *testing.T) {
	c := newCollector()
	h := NewGitHubHandler("", c.process)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", strings.NewReader(`{"zen": "ship it"}`))
	req.Header.Set("X-GitHub-Event", "ping")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for ping", rec.Code)
	}
	if c.count() != 0 {
		t.Error("ping event should not be processed")
	}
}

func TestWebhook_MalformedPayload(t *testing.T) {
	c := newCollector()
	h := NewGitHubHandler("", c.process)

	rec := post(h, "{not json", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
