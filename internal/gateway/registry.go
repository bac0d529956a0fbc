package gateway

import (
	"sort"
	"sync"
)

// Registry is the single source of truth for which rooms a connection has
// joined: at most one membership per room per connection. The disconnect
// handler consults it to enumerate the leave events a dropped connection
// implies, instead of each handler keeping its own bookkeeping.
type Registry struct {
	mu          sync.Mutex
	memberships map[string]map[string]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{memberships: make(map[string]map[string]struct{})}
}

// Add records that connID has joined roomID. Idempotent.
func (r *Registry) Add(connID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms := r.memberships[connID]
	if rooms == nil {
		rooms = make(map[string]struct{})
		r.memberships[connID] = rooms
	}
	rooms[roomID] = struct{}{}
}

// Remove records that connID has left roomID.
func (r *Registry) Remove(connID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rooms, ok := r.memberships[connID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(r.memberships, connID)
		}
	}
}

// Rooms returns the rooms connID currently belongs to, sorted by id.
func (r *Registry) Rooms(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return sortedKeys(r.memberships[connID])
}

// Drop removes every membership of connID and returns the rooms it
// belonged to, sorted by id. Used by the disconnect path.
func (r *Registry) Drop(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms := sortedKeys(r.memberships[connID])
	delete(r.memberships, connID)
	return rooms
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
