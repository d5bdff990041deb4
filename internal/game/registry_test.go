package game_test

import (
	"sync"
	"testing"

	"github.com/MitchForest/settlers-sub000/internal/game"
	"github.com/MitchForest/settlers-sub000/internal/lifecycle"
)

func TestRegistry_EvictsOldestAtCapacity(t *testing.T) {
	var evicted []string
	r := game.NewRegistry(2, func(gameID string) {
		evicted = append(evicted, gameID)
	})

	r.Put("g1", lifecycle.NewMachine("g1"))
	r.Put("g2", lifecycle.NewMachine("g2"))
	r.Put("g3", lifecycle.NewMachine("g3"))

	if r.Len() != 2 {
		t.Errorf("len = %d, want 2", r.Len())
	}
	if _, ok := r.Get("g1"); ok {
		t.Error("oldest game survived eviction")
	}
	if _, ok := r.Get("g3"); !ok {
		t.Error("newest game missing")
	}
	if len(evicted) != 1 || evicted[0] != "g1" {
		t.Errorf("evicted = %v, want [g1]", evicted)
	}
}

func TestRegistry_PutIsIdempotentPerGame(t *testing.T) {
	r := game.NewRegistry(4, nil)

	e1 := r.Put("g1", lifecycle.NewMachine("g1"))
	e2 := r.Put("g1", lifecycle.NewMachine("g1"))

	if e1 != e2 {
		t.Error("second Put replaced the live entry")
	}
	if r.Len() != 1 {
		t.Errorf("len = %d, want 1", r.Len())
	}
}

func TestRegistry_RemoveRunsEvictionHook(t *testing.T) {
	var evicted []string
	r := game.NewRegistry(4, func(gameID string) {
		evicted = append(evicted, gameID)
	})
	r.Put("g1", lifecycle.NewMachine("g1"))

	r.Remove("g1")
	r.Remove("g1") // second remove is a no-op

	if len(evicted) != 1 || evicted[0] != "g1" {
		t.Errorf("evicted = %v, want [g1]", evicted)
	}
	if r.Len() != 0 {
		t.Errorf("len = %d, want 0", r.Len())
	}
}

func TestEntry_DoSerializesMutation(t *testing.T) {
	r := game.NewRegistry(4, nil)
	entry := r.Put("g1", lifecycle.NewMachine("g1"))

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry.Do(func() { counter++ })
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
}

func TestRegistry_EntryStillLoadedDuringEviction(t *testing.T) {
	var r *game.Registry
	sawLoaded := make(map[string]bool)
	r = game.NewRegistry(1, func(gameID string) {
		// A deadline timer cancelled here could be mid-flight; until the
		// hook returns the game must still resolve.
		_, ok := r.Get(gameID)
		sawLoaded[gameID] = ok
	})

	r.Put("g1", lifecycle.NewMachine("g1"))
	r.Put("g2", lifecycle.NewMachine("g2"))
	r.Remove("g2")

	if !sawLoaded["g1"] {
		t.Error("capacity eviction dropped g1 before its hook ran")
	}
	if !sawLoaded["g2"] {
		t.Error("Remove dropped g2 before its hook ran")
	}
	if _, ok := r.Get("g1"); ok {
		t.Error("g1 still loaded after eviction completed")
	}
	if _, ok := r.Get("g2"); ok {
		t.Error("g2 still loaded after removal completed")
	}
}
