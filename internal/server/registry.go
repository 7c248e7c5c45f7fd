package server

import (
	"sync"

	"github.com/classchat/classchat/internal/types"
)

// unknownUsername is substituted in rosters for connections that never
// presented an identity.
const unknownUsername = "Unknown"

// Registry is the in-memory source of truth for which connection is in
// which room. At most one entry exists per connection id. Instances are
// injected into the coordinator rather than shared as package state, so
// independent servers (and tests) never observe each other.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]presenceEntry
}

type presenceEntry struct {
	username string
	room     string
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]presenceEntry),
	}
}

// AddOrUpdate registers the connection, replacing any previous identity
// and room binding for the same id.
func (r *Registry) AddOrUpdate(connId, username, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[connId] = presenceEntry{username: username, room: room}
}

// Get returns the current binding for the connection.
func (r *Registry) Get(connId string) (types.OnlineUser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.conns[connId]
	if !ok {
		return types.OnlineUser{}, false
	}

	return types.OnlineUser{Id: connId, Username: entry.username, Room: entry.room}, true
}

// Remove deletes the connection and reports its last known binding so
// the caller can re-broadcast presence for the vacated room.
func (r *Registry) Remove(connId string) (types.OnlineUser, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.conns[connId]
	if !ok {
		return types.OnlineUser{}, false
	}

	delete(r.conns, connId)
	return types.OnlineUser{Id: connId, Username: entry.username, Room: entry.room}, true
}

// ListByRoom snapshots the current members of the room. The snapshot is
// taken under the lock so a roster never interleaves with a concurrent
// membership change. Order is unspecified.
func (r *Registry) ListByRoom(room string) []types.OnlineUser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]types.OnlineUser, 0)
	if room == "" {
		return users
	}

	for id, entry := range r.conns {
		if entry.room != room {
			continue
		}

		username := entry.username
		if username == "" {
			username = unknownUsername
		}

		users = append(users, types.OnlineUser{Id: id, Username: username, Room: entry.room})
	}

	return users
}

// CountByRoom reports the number of connections currently in the room.
func (r *Registry) CountByRoom(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if room == "" {
		return 0
	}

	n := 0
	for _, entry := range r.conns {
		if entry.room == room {
			n++
		}
	}

	return n
}

// Len reports the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}
