package logging

import (
	"log"
	"sync"
	"time"
)

// CleanupScheduler runs the transcript Cleaner on an interval.
type CleanupScheduler struct {
	cleaner  *Cleaner
	interval time.Duration

	mu      sync.Mutex
	running bool
	stop    chan struct{}
}

// NewCleanupScheduler creates a scheduler that runs cleaner every interval.
func NewCleanupScheduler(cleaner *Cleaner, interval time.Duration) *CleanupScheduler {
	return &CleanupScheduler{cleaner: cleaner, interval: interval}
}

// Start begins scheduled cleanup, running one pass immediately.
// Starting a running scheduler is a no-op.
func (s *CleanupScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})

	go s.loop(s.stop)
}

func (s *CleanupScheduler) loop(stop chan struct{}) {
	s.runCleanup()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.runCleanup()
		case <-stop:
			return
		}
	}
}

// Stop halts scheduled cleanup. Stopping a stopped scheduler is a no-op.
func (s *CleanupScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.stop)
}

func (s *CleanupScheduler) runCleanup() {
	deleted, err := s.cleaner.Cleanup()
	if err != nil {
		log.Printf("transcript cleanup: %v", err)
	} else if deleted > 0 {
		log.Printf("transcript cleanup removed %d file(s)", deleted)
	}
}
