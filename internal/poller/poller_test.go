package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/revue-dev/revue/internal/discovery"
	"github.com/revue-dev/revue/internal/review"
	"github.com/revue-dev/revue/internal/storage"
)

type fakeSource struct {
	mu       sync.Mutex
	projects []storage.Project
	listErr  error
	stamped  []string
}

func (f *fakeSource) PollingProjects() ([]storage.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.projects, f.listErr
}

func (f *fakeSource) StampPolled(projectID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stamped = append(f.stamped, projectID)
	return nil
}

func (f *fakeSource) stampedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.stamped...)
}

type fakeDiscoverer struct {
	results map[string]*discovery.Result
	errs    map[string]error
}

func (f *fakeDiscoverer) Discover(ctx context.Context, project *storage.Project) (*discovery.Result, error) {
	if err := f.errs[project.ID]; err != nil {
		return nil, err
	}
	if r, ok := f.results[project.ID]; ok {
		return r, nil
	}
	return &discovery.Result{}, nil
}

type fakeOrch struct {
	mu      sync.Mutex
	batches map[string][]discovery.Candidate
}

func (f *fakeOrch) ReviewBatch(ctx context.Context, project *storage.Project, prs []discovery.Candidate, sink review.EventSink) review.BatchSummary {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.batches == nil {
		f.batches = map[string][]discovery.Candidate{}
	}
	f.batches[project.ID] = prs
	return review.BatchSummary{Triggered: len(prs), Completed: len(prs)}
}

type fakeReaper struct {
	mu   sync.Mutex
	ages []time.Duration
}

func (f *fakeReaper) FailStaleSessions(maxAge time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ages = append(f.ages, maxAge)
	return 1, nil
}

func (f *fakeReaper) calls() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.ages...)
}

func pollerProjects() []storage.Project {
	return []storage.Project{
		{ID: "github.com/acme/widgets", GitRemote: "https://github.com/acme/widgets.git", TriggerLabel: "ai_codereview"},
		{ID: "github.com/acme/gadgets", GitRemote: "https://github.com/acme/gadgets.git", TriggerLabel: "ai_codereview"},
	}
}

func TestPollOnce(t *testing.T) {
	source := &fakeSource{projects: pollerProjects()}
	engine := &fakeDiscoverer{results: map[string]*discovery.Result{
		"github.com/acme/widgets": {
			Pending: []discovery.Candidate{{Number: 42}},
		},
	}}
	orch := &fakeOrch{}
	p := New(source, engine, orch, time.Minute)

	if err := p.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce() error = %v", err)
	}

	if got := orch.batches["github.com/acme/widgets"]; len(got) != 1 || got[0].Number != 42 {
		t.Errorf("widgets batch = %+v", got)
	}
	if _, ok := orch.batches["github.com/acme/gadgets"]; ok {
		t.Error("project with no pending PRs should not be orchestrated")
	}
	if stamped := source.stampedIDs(); len(stamped) != 2 {
		t.Errorf("stamped = %v, want both projects", stamped)
	}

	status := p.Status()
	if status.LastPollAt == nil {
		t.Error("LastPollAt should be set after a cycle")
	}
	if status.LastError != "" {
		t.Errorf("LastError = %q, want empty", status.LastError)
	}
}

func TestPollOnce_ReapsStaleSessions(t *testing.T) {
	source := &fakeSource{projects: pollerProjects()}
	reaper := &fakeReaper{}
	p := New(source, &fakeDiscoverer{}, &fakeOrch{}, time.Minute).
		WithStaleReaper(reaper, 2*time.Hour)

	if err := p.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce() error = %v", err)
	}
	if err := p.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce() error = %v", err)
	}

	calls := reaper.calls()
	if len(calls) != 2 {
		t.Fatalf("reaper ran %d times, want once per cycle", len(calls))
	}
	if calls[0] != 2*time.Hour {
		t.Errorf("reaper maxAge = %v, want 2h", calls[0])
	}
}

func TestPollOnce_ReapingDisabled(t *testing.T) {
	source := &fakeSource{projects: pollerProjects()}
	reaper := &fakeReaper{}
	p := New(source, &fakeDiscoverer{}, &fakeOrch{}, time.Minute).
		WithStaleReaper(reaper, 0)

	if err := p.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce() error = %v", err)
	}
	if len(reaper.calls()) != 0 {
		t.Error("reaper should not run with a zero stale age")
	}
}

func TestPollOnce_ProjectFailureIsolated(t *testing.T) {
	source := &fakeSource{projects: pollerProjects()}
	engine := &fakeDiscoverer{
		errs: map[string]error{"github.com/acme/widgets": errors.New("forge down")},
		results: map[string]*discovery.Result{
			"github.com/acme/gadgets": {Pending: []discovery.Candidate{{Number: 7}}},
		},
	}
	orch := &fakeOrch{}
	p := New(source, engine, orch, time.Minute)

	err := p.PollOnce(context.Background())
	if err == nil {
		t.Fatal("PollOnce() should report the project error")
	}

	if _, ok := orch.batches["github.com/acme/gadgets"]; !ok {
		t.Error("second project should still be processed after the first fails")
	}
	if status := p.Status(); status.LastError == "" {
		t.Error("LastError should record the cycle failure")
	}
}

func TestPollOnce_ListFailure(t *testing.T) {
	source := &fakeSource{listErr: errors.New("db locked")}
	p := New(source, &fakeDiscoverer{}, &fakeOrch{}, time.Minute)

	if err := p.PollOnce(context.Background()); err == nil {
		t.Fatal("PollOnce() expected error when listing fails")
	}
}

func TestStartStop_Idempotent(t *testing.T) {
	source := &fakeSource{}
	p := New(source, &fakeDiscoverer{}, &fakeOrch{}, time.Hour)

	if p.Status().Running {
		t.Fatal("new poller should not be running")
	}

	p.Start()
	p.Start() // no-op
	if !p.Status().Running {
		t.Error("poller should be running after Start")
	}

	p.Stop()
	p.Stop() // no-op
	if p.Status().Running {
		t.Error("poller should be stopped after Stop")
	}

	// A stopped poller can be started again.
	p.Start()
	if !p.Status().Running {
		t.Error("poller should restart after Stop")
	}
	p.Stop()
}

func TestStart_RunsInitialCycle(t *testing.T) {
	source := &fakeSource{projects: pollerProjects()}
	p := New(source, &fakeDiscoverer{}, &fakeOrch{}, time.Hour)

	p.Start()
	defer p.Stop()

	deadline := time.After(5 * time.Second)
	for {
		if len(source.stampedIDs()) == 2 {
			return
		}
		select {
		case <-deadline:
			t.Fatal("initial cycle never ran")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestDefaultInterval(t *testing.T) {
	p := New(&fakeSource{}, &fakeDiscoverer{}, &fakeOrch{}, 0)
	if got := p.Status().IntervalSeconds; got != 60 {
		t.Errorf("IntervalSeconds = %d, want 60", got)
	}
}
