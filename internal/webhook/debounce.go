package webhook

import (
	"fmt"
	"sync"
	"time"
)

// Debouncer drops duplicate pull_request deliveries within a window.
// GitHub redelivers on retries, and a push to a labeled PR can produce
// several synchronize events in quick succession; only the first one
// inside the window should reach the processor.
type Debouncer struct {
	window time.Duration
	seen   map[string]time.Time
	mu     sync.Mutex
}

// NewDebouncer creates a Debouncer with the given window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window: window,
		seen:   make(map[string]time.Time),
	}
}

func eventKey(e *PullRequestEvent) string {
	return fmt.Sprintf("%s#%d:%s", e.RepoFullName, e.Number, e.Action)
}

// ShouldProcess reports whether the event is the first of its kind
// inside the window, recording it as seen when it is.
func (d *Debouncer) ShouldProcess(e *PullRequestEvent) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := eventKey(e)
	now := time.Now()

	if last, ok := d.seen[key]; ok && now.Sub(last) < d.window {
		return false
	}

	d.seen[key] = now
	d.prune(now)
	return true
}

// prune drops entries old enough that they can never suppress again.
func (d *Debouncer) prune(now time.Time) {
	threshold := now.Add(-d.window * 2)
	for key, t := range d.seen {
		if t.Before(threshold) {
			delete(d.seen, key)
		}
	}
}
