// Package nsusers implements the name server's active-user registry: the
// flat set of usernames currently connected via a client dispatcher thread.
package nsusers

import "sync"

// Registry is the set of currently-connected client usernames.
type Registry struct {
	mu    sync.Mutex
	users map[string]int // username -> concurrent session count
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{users: make(map[string]int)}
}

// Add records username as connected. The same username may be connected
// from more than one session; the registry counts references so it only
// disappears from List once every session has disconnected.
func (r *Registry) Add(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[username]++
}

// Remove drops one connected reference for username.
func (r *Registry) Remove(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.users[username] <= 1 {
		delete(r.users, username)
		return
	}
	r.users[username]--
}

// List returns the current set of connected usernames.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.users))
	for name := range r.users {
		out = append(out, name)
	}
	return out
}
