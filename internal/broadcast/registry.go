// ABOUTME: Authoritative registry of agent inboxes used as broadcast targets
// ABOUTME: Safe for concurrent registration, removal and target snapshots

package broadcast

import (
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/2389/hvac-mesh/internal/agent"
)

// ErrDuplicatePeer means an inbox with the same owner is already registered.
var ErrDuplicatePeer = errors.New("peer already registered")

// Registry maps agent ids to inboxes.
type Registry struct {
	mu    sync.RWMutex
	peers map[string]*agent.Inbox
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{peers: make(map[string]*agent.Inbox)}
}

// Register adds inbox under its owner id.
func (r *Registry) Register(inbox *agent.Inbox) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.peers[inbox.Owner()]; exists {
		return ErrDuplicatePeer
	}
	r.peers[inbox.Owner()] = inbox
	return nil
}

// Unregister removes the peer. Unknown ids are ignored.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, id)
}

// Lookup returns the inbox registered for id.
func (r *Registry) Lookup(id string) (*agent.Inbox, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	in, ok := r.peers[id]
	return in, ok
}

// IDs returns the registered ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.peers))
	for id := range r.peers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Len returns the number of registered peers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// targets copies every inbox except exclude, ordered by owner id.
func (r *Registry) targets(exclude string) []*agent.Inbox {
	r.mu.RLock()
	out := make([]*agent.Inbox, 0, len(r.peers))
	for id, in := range r.peers {
		if id == exclude {
			continue
		}
		out = append(out, in)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b *agent.Inbox) int { return strings.Compare(a.Owner(), b.Owner()) })
	return out
}
