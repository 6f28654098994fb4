package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/revue-dev/revue/internal/review"
)

// sseWriter serializes orchestration events as server-sent-event frames:
// one JSON object per frame with the event type and payload flattened.
type sseWriter struct {
	w  http.ResponseWriter
	f  http.Flusher
	mu sync.Mutex
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	f.Flush()

	return &sseWriter{w: w, f: f}, nil
}

// send writes one event frame. Write errors are swallowed: a client
// that went away must not abort the orchestration producing the events.
func (s *sseWriter) send(e review.Event) {
	frame := make(map[string]any, len(e.Fields)+1)
	for k, v := range e.Fields {
		frame[k] = v
	}
	frame["type"] = e.Type

	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "data: %s\n\n", data)
	s.f.Flush()
}

// sink adapts the writer to the orchestrator's event sink.
func (s *sseWriter) sink() review.EventSink {
	return func(e review.Event) { s.send(e) }
}
