package gateway

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/harunnryd/sekisho/internal/store"
)

const dedupeFile = "seen_requests.json"

type seenRequest struct {
	RequestID string    `json:"requestId"`
	SeenAt    time.Time `json:"seenAt"`
}

type dedupeState struct {
	Requests []seenRequest `json:"requests"`
}

// dedupeStore remembers request ids so a replayed invocation never produces
// a second reply or a second history append. Entries expire after ttl and
// are pruned on the reaper tick.
type dedupeStore struct {
	mu   sync.Mutex
	path string
	ttl  time.Duration
	seen map[string]time.Time
}

func newDedupeStore(dir string, ttl time.Duration) (*dedupeStore, error) {
	d := &dedupeStore{
		path: filepath.Join(dir, dedupeFile),
		ttl:  ttl,
		seen: make(map[string]time.Time),
	}

	var state dedupeState
	if err := store.ReadJSON(d.path, &state); err != nil {
		return nil, err
	}
	now := time.Now()
	for _, r := range state.Requests {
		if d.ttl > 0 && now.Sub(r.SeenAt) > d.ttl {
			continue
		}
		d.seen[r.RequestID] = r.SeenAt
	}
	return d, nil
}

// CheckAndMark reports whether the request id was already seen, marking it
// as seen otherwise. An empty id is never deduplicated.
func (d *dedupeStore) CheckAndMark(requestID string) (bool, error) {
	if requestID == "" {
		return false, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, dup := d.seen[requestID]; dup {
		return true, nil
	}
	d.seen[requestID] = time.Now()
	return false, d.persistLocked()
}

// Prune drops entries older than the ttl.
func (d *dedupeStore) Prune(now time.Time) error {
	if d.ttl <= 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	changed := false
	for id, at := range d.seen {
		if now.Sub(at) > d.ttl {
			delete(d.seen, id)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return d.persistLocked()
}

func (d *dedupeStore) persistLocked() error {
	state := dedupeState{Requests: make([]seenRequest, 0, len(d.seen))}
	for id, at := range d.seen {
		state.Requests = append(state.Requests, seenRequest{RequestID: id, SeenAt: at})
	}
	return store.WriteJSON(d.path, state)
}
