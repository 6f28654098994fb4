package metrics

import (
	"sync/atomic"
)

// Metrics tracks operational metrics.
type Metrics struct {
	ReviewsTriggered  uint64 `json:"reviews_triggered"`
	ReviewsCompleted  uint64 `json:"reviews_completed"`
	ReviewsFailed     uint64 `json:"reviews_failed"`
	ReviewsTimedOut   uint64 `json:"reviews_timed_out"`
	WebhooksReceived  uint64 `json:"webhooks_received"`
	WebhooksProcessed uint64 `json:"webhooks_processed"`
	PollCycles        uint64 `json:"poll_cycles"`
}

var global = &Metrics{}

// ReviewTriggered increments the count of review runs started.
func ReviewTriggered() { atomic.AddUint64(&global.ReviewsTriggered, 1) }

// ReviewCompleted increments the count of review runs that completed successfully.
func ReviewCompleted() { atomic.AddUint64(&global.ReviewsCompleted, 1) }

// ReviewFailed increments the count of review runs that failed.
func ReviewFailed() { atomic.AddUint64(&global.ReviewsFailed, 1) }

// ReviewTimedOut increments the count of review runs that timed out.
func ReviewTimedOut() { atomic.AddUint64(&global.ReviewsTimedOut, 1) }

// WebhookReceived increments the count of webhooks received.
func WebhookReceived() { atomic.AddUint64(&global.WebhooksReceived, 1) }

// WebhookProcessed increments the count of webhooks processed.
func WebhookProcessed() { atomic.AddUint64(&global.WebhooksProcessed, 1) }

// PollCycle increments the count of completed poller cycles.
func PollCycle() { atomic.AddUint64(&global.PollCycles, 1) }

// Get returns a snapshot of the current metrics.
func Get() Metrics {
	return Metrics{
		ReviewsTriggered:  atomic.LoadUint64(&global.ReviewsTriggered),
		ReviewsCompleted:  atomic.LoadUint64(&global.ReviewsCompleted),
		ReviewsFailed:     atomic.LoadUint64(&global.ReviewsFailed),
		ReviewsTimedOut:   atomic.LoadUint64(&global.ReviewsTimedOut),
		WebhooksReceived:  atomic.LoadUint64(&global.WebhooksReceived),
		WebhooksProcessed: atomic.LoadUint64(&global.WebhooksProcessed),
		PollCycles:        atomic.LoadUint64(&global.PollCycles),
	}
}

// Reset resets all metrics to zero (useful for testing).
func Reset() {
	atomic.StoreUint64(&global.ReviewsTriggered, 0)
	atomic.StoreUint64(&global.ReviewsCompleted, 0)
	atomic.StoreUint64(&global.ReviewsFailed, 0)
	atomic.StoreUint64(&global.ReviewsTimedOut, 0)
	atomic.StoreUint64(&global.WebhooksReceived, 0)
	atomic.StoreUint64(&global.WebhooksProcessed, 0)
	atomic.StoreUint64(&global.PollCycles, 0)
}
