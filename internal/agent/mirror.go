package agent

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/signalsfoundry/satellite-agent/internal/satellite"
)

// Mirror is a concurrency-safe copy of the last record pushed to the state
// datastore. The display command reads it over HTTP.
type Mirror struct {
	mu          sync.RWMutex
	record      *satellite.Record
	publishedAt time.Time
}

// NewMirror creates an empty Mirror.
func NewMirror() *Mirror {
	return &Mirror{}
}

// Store replaces the mirrored record. Records are immutable, so the pointer
// is kept as is.
func (m *Mirror) Store(rec *satellite.Record, at time.Time) {
	if rec == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record = rec
	m.publishedAt = at
}

// Last returns the mirrored record and when it was published. ok is false
// until the first successful publish.
func (m *Mirror) Last() (rec *satellite.Record, at time.Time, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.record == nil {
		return nil, time.Time{}, false
	}
	return m.record, m.publishedAt, true
}

// ServeHTTP answers with the mirrored record as the tracking API's flat JSON
// object, or 404 when nothing has been published yet.
func (m *Mirror) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rec, at, ok := m.Last()
	if !ok {
		http.Error(w, "no satellite record published yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Last-Modified", at.UTC().Format(http.TimeFormat))
	_ = json.NewEncoder(w).Encode(rec)
}
