// Package presence tracks which users hold a live connection on this process.
package presence

import (
	"sort"
	"sync"
)

// Handle is a registered connection. IDs are unique per connection, so a
// reconnecting user gets a new ID.
type Handle interface {
	ID() string
}

// Registry maps a user to their single active handle. The last registration
// wins; the caller owns closing whatever handle it displaced.
type Registry[H Handle] struct {
	mu    sync.RWMutex
	users map[string]H
}

func NewRegistry[H Handle]() *Registry[H] {
	return &Registry[H]{users: make(map[string]H)}
}

// Register installs h for user and returns the handle it replaced, if any.
func (r *Registry[H]) Register(user string, h H) (prev H, replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, replaced = r.users[user]
	r.users[user] = h
	return prev, replaced
}

// Unregister removes user only while h is still the registered handle. A
// late disconnect from a superseded connection is a no-op.
func (r *Registry[H]) Unregister(user string, h H) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.users[user]; ok && cur.ID() == h.ID() {
		delete(r.users, user)
		return true
	}
	return false
}

func (r *Registry[H]) Lookup(user string) (H, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.users[user]
	return h, ok
}

// Online returns the ids of every registered user, sorted.
func (r *Registry[H]) Online() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.users))
	for u := range r.users {
		out = append(out, u)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Range calls fn for a snapshot of the registered handles. fn runs without
// the lock held.
func (r *Registry[H]) Range(fn func(user string, h H)) {
	r.mu.RLock()
	users := make([]string, 0, len(r.users))
	handles := make([]H, 0, len(r.users))
	for u, h := range r.users {
		users = append(users, u)
		handles = append(handles, h)
	}
	r.mu.RUnlock()
	for i := range users {
		fn(users[i], handles[i])
	}
}

func (r *Registry[H]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}
