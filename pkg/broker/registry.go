package broker

import (
	"sync"
	"sync/atomic"

	"github.com/smartkitchen/smk/pkg/model"
)

// Peer is a broadcast destination: a client connection or a dashboard
// subscriber.
type Peer interface {
	ID() string
	Send(m model.Message) error
	Close() error
}

// Registry is a copy-on-write set of peers. Writers serialize on a mutex
// and publish a fresh slice; Snapshot never blocks.
type Registry struct {
	mu    sync.Mutex
	peers atomic.Pointer[[]Peer]
}

// Add registers p. Registering the same ID twice replaces the old entry.
func (r *Registry) Add(p Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.Snapshot()
	next := make([]Peer, 0, len(cur)+1)
	for _, q := range cur {
		if q.ID() != p.ID() {
			next = append(next, q)
		}
	}
	next = append(next, p)
	r.peers.Store(&next)
}

// Remove unregisters the peer with the given ID. Reports whether it was
// present.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.Snapshot()
	next := make([]Peer, 0, len(cur))
	for _, q := range cur {
		if q.ID() != id {
			next = append(next, q)
		}
	}
	if len(next) == len(cur) {
		return false
	}
	r.peers.Store(&next)
	return true
}

// Snapshot returns the current peers. The slice must not be modified.
func (r *Registry) Snapshot() []Peer {
	if p := r.peers.Load(); p != nil {
		return *p
	}
	return nil
}

// Len returns the number of registered peers.
func (r *Registry) Len() int { return len(r.Snapshot()) }

// CloseAll closes every peer and empties the registry.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	cur := r.Snapshot()
	r.peers.Store(nil)
	r.mu.Unlock()
	for _, p := range cur {
		_ = p.Close()
	}
}
