package whatsapp

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Entry is the in-memory state of one live session handle.
type Entry struct {
	SessionID   string
	SessionName string
	WorkspaceID string
	Status      string
	QRCode      string
	Phone       string
	Attempts    int
	MaxAttempts int
	ConnectedAt time.Time

	conn   Conn
	creds  Credentials
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	timer  *time.Timer
	closed bool
}

// Registry maps session ids to live handles. Only the Manager mutates it.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	gens    map[string]uint64
	closed  bool
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
		gens:    make(map[string]uint64),
	}
}

// Get returns a snapshot of the entry for sessionID.
func (r *Registry) Get(sessionID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[sessionID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// List returns snapshots of all entries ordered by session id.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) countStatus(status string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, e := range r.entries {
		if e.Status == status {
			n++
		}
	}
	return n
}

// begin removes the current handle for sessionID and starts a new generation.
// The returned generation must be presented to commit.
func (r *Registry) begin(sessionID string) (uint64, *Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.entries[sessionID]
	delete(r.entries, sessionID)
	r.gens[sessionID]++
	return r.gens[sessionID], prev
}

// beginIfCurrent is begin guarded by e still being the registered handle.
func (r *Registry) beginIfCurrent(e *Entry) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entries[e.SessionID] != e {
		return 0, false
	}
	delete(r.entries, e.SessionID)
	r.gens[e.SessionID]++
	return r.gens[e.SessionID], true
}

// commit installs e unless another begin happened since gen was issued or
// the registry was closed.
func (r *Registry) commit(gen uint64, e *Entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.gens[e.SessionID] != gen {
		return false
	}
	r.entries[e.SessionID] = e
	return true
}

// removeIfCurrent drops e if it is still the registered handle.
func (r *Registry) removeIfCurrent(e *Entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entries[e.SessionID] != e {
		return false
	}
	delete(r.entries, e.SessionID)
	r.gens[e.SessionID]++
	return true
}

func (r *Registry) isCurrent(e *Entry) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[e.SessionID] == e
}

// update applies fn to e under the registry lock if e is still current.
func (r *Registry) update(e *Entry, fn func(*Entry)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entries[e.SessionID] != e {
		return false
	}
	fn(e)
	return true
}

// snapshot copies e under the registry lock.
func (r *Registry) snapshot(e *Entry) Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *e
}

func (r *Registry) ids() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.entries))
	for id := range r.entries {
		out = append(out, id)
	}
	return out
}

// close empties the registry, returns the removed handles and makes every
// later commit fail.
func (r *Registry) close() []*Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	out := make([]*Entry, 0, len(r.entries))
	for id, e := range r.entries {
		out = append(out, e)
		delete(r.entries, id)
		r.gens[id]++
	}
	return out
}
