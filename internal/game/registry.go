// Package game glues the pieces together: a bounded registry of live games
// and a coordinator that turns player commands into validated, persisted,
// applied events.
package game

import (
	"sync"

	"github.com/MitchForest/settlers-sub000/internal/lifecycle"
)

// Entry is one live game held in memory: its state machine, the bridge
// feeding it, and a lock serializing all mutation for the game.
type Entry struct {
	mu      sync.Mutex
	GameID  string
	Machine *lifecycle.Machine
	Bridge  *lifecycle.Bridge
}

// Do runs fn with the entry's lock held. All mutating operations for a game
// go through here; nothing relies on incidental ordering.
func (e *Entry) Do(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn()
}

// Registry is a bounded map of live games. When capacity is reached the
// oldest entry is evicted; onEvict runs first so the evicted game's timers
// are cancelled before any state is dropped.
type Registry struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*Entry
	order    []string
	onEvict  func(gameID string)
}

// NewRegistry creates a Registry holding at most capacity games. onEvict
// may be nil.
func NewRegistry(capacity int, onEvict func(gameID string)) *Registry {
	return &Registry{
		capacity: capacity,
		entries:  make(map[string]*Entry),
		onEvict:  onEvict,
	}
}

// Get returns the live entry for a game, if loaded.
func (r *Registry) Get(gameID string) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[gameID]
	return e, ok
}

// Put registers a live entry, evicting the oldest game if the registry is
// full. Re-putting a loaded game returns the existing entry.
func (r *Registry) Put(gameID string, machine *lifecycle.Machine) *Entry {
	r.mu.Lock()
	if e, ok := r.entries[gameID]; ok {
		r.mu.Unlock()
		return e
	}

	// Taking the victim off the order list claims it, so a concurrent Put
	// or Remove cannot evict it twice. It stays in the map until its timers
	// are dead: a deadline callback firing mid-eviction must still find a
	// loaded game, never append events for an unloaded one.
	var evicted string
	if len(r.entries) >= r.capacity && len(r.order) > 0 {
		evicted = r.order[0]
		r.order = r.order[1:]
	}

	e := &Entry{
		GameID:  gameID,
		Machine: machine,
		Bridge:  lifecycle.NewBridge(machine),
	}
	r.entries[gameID] = e
	r.order = append(r.order, gameID)
	r.mu.Unlock()

	if evicted != "" {
		if r.onEvict != nil {
			r.onEvict(evicted)
		}
		r.mu.Lock()
		delete(r.entries, evicted)
		r.mu.Unlock()
	}
	return e
}

// Remove drops a game from the registry. Its timers are cancelled via
// onEvict while the entry is still loaded, then the entry goes away.
func (r *Registry) Remove(gameID string) {
	r.mu.Lock()
	claimed := false
	if _, ok := r.entries[gameID]; ok {
		for i, id := range r.order {
			if id == gameID {
				r.order = append(r.order[:i], r.order[i+1:]...)
				claimed = true
				break
			}
		}
	}
	r.mu.Unlock()
	if !claimed {
		return
	}

	if r.onEvict != nil {
		r.onEvict(gameID)
	}
	r.mu.Lock()
	delete(r.entries, gameID)
	r.mu.Unlock()
}

// Len reports how many games are loaded.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
