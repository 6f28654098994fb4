// Package poller periodically runs discovery and review orchestration
// for every polling-enabled project.
package poller

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/revue-dev/revue/internal/discovery"
	"github.com/revue-dev/revue/internal/metrics"
	"github.com/revue-dev/revue/internal/review"
	"github.com/revue-dev/revue/internal/storage"
)

// ProjectSource lists pollable projects and stamps poll times.
type ProjectSource interface {
	PollingProjects() ([]storage.Project, error)
	StampPolled(projectID string) error
}

// SessionReaper fails review sessions that have been running longer
// than maxAge, so their claims stop blocking re-discovery.
type SessionReaper interface {
	FailStaleSessions(maxAge time.Duration) (int, error)
}

// Discoverer classifies a project's open PRs.
type Discoverer interface {
	Discover(ctx context.Context, project *storage.Project) (*discovery.Result, error)
}

// Orchestrator runs review batches.
type Orchestrator interface {
	ReviewBatch(ctx context.Context, project *storage.Project, prs []discovery.Candidate, sink review.EventSink) review.BatchSummary
}

// Status is a snapshot of the poller for external introspection.
type Status struct {
	Running         bool       `json:"running"`
	IntervalSeconds int        `json:"interval_seconds"`
	LastPollAt      *time.Time `json:"last_poll_at,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
}

// Poller owns the interval timer. Start, Stop, and Trigger are
// idempotent; cycles never run concurrently with each other.
type Poller struct {
	store    ProjectSource
	engine   Discoverer
	orch     Orchestrator
	interval time.Duration

	reaper   SessionReaper
	staleAge time.Duration

	mu       sync.Mutex // guards the fields below
	running  bool
	stop     chan struct{}
	lastPoll *time.Time
	lastErr  string

	cycleMu sync.Mutex // serializes poll cycles
}

// New creates a Poller with the given tick interval.
func New(store ProjectSource, engine Discoverer, orch Orchestrator, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Poller{store: store, engine: engine, orch: orch, interval: interval}
}

// WithStaleReaper makes every poll cycle fail sessions older than
// staleAge before discovery runs, so a run orphaned by a hung agent
// does not block its PR until the next restart. A staleAge of <= 0
// disables reaping.
func (p *Poller) WithStaleReaper(reaper SessionReaper, staleAge time.Duration) *Poller {
	p.reaper = reaper
	p.staleAge = staleAge
	return p
}

// Start begins polling. Starting a running poller is a no-op. The first
// cycle runs immediately, then on every tick.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.stop = make(chan struct{})

	go p.loop(p.stop)
}

func (p *Poller) loop(stop chan struct{}) {
	p.runCycle()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.runCycle()
		case <-stop:
			return
		}
	}
}

// Stop halts polling. Stopping a stopped poller is a no-op.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.running = false
	close(p.stop)
}

// Status reports the poller's current state.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		Running:         p.running,
		IntervalSeconds: int(p.interval / time.Second),
		LastPollAt:      p.lastPoll,
		LastError:       p.lastErr,
	}
}

func (p *Poller) runCycle() {
	if err := p.PollOnce(context.Background()); err != nil {
		log.Printf("poll cycle: %v", err)
	}
}

// PollOnce runs one full discovery-and-review cycle over all
// polling-enabled projects. It can be called while the poller is
// stopped (the manual trigger surface) and serializes with ticks.
func (p *Poller) PollOnce(ctx context.Context) error {
	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()

	if p.reaper != nil && p.staleAge > 0 {
		if failed, err := p.reaper.FailStaleSessions(p.staleAge); err != nil {
			log.Printf("reaping stale sessions: %v", err)
		} else if failed > 0 {
			log.Printf("failed %d stale session(s)", failed)
		}
	}

	projects, err := p.store.PollingProjects()
	if err != nil {
		p.recordCycle(fmt.Errorf("listing projects: %w", err))
		return fmt.Errorf("listing projects: %w", err)
	}

	var firstErr error
	for i := range projects {
		project := &projects[i]
		if err := p.pollProject(ctx, project); err != nil {
			log.Printf("polling %s: %v", project.ID, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	metrics.PollCycle()
	p.recordCycle(firstErr)
	return firstErr
}

func (p *Poller) pollProject(ctx context.Context, project *storage.Project) error {
	result, err := p.engine.Discover(ctx, project)
	if err != nil {
		return err
	}

	if len(result.Pending) > 0 {
		summary := p.orch.ReviewBatch(ctx, project, result.Pending, nil)
		log.Printf("polled %s: %d pending, %d completed, %d failed",
			project.ID, len(result.Pending), summary.Completed, summary.Failed)
	}

	if err := p.store.StampPolled(project.ID); err != nil {
		return fmt.Errorf("stamping poll time: %w", err)
	}
	return nil
}

func (p *Poller) recordCycle(err error) {
	now := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastPoll = &now
	if err != nil {
		p.lastErr = err.Error()
	} else {
		p.lastErr = ""
	}
}
