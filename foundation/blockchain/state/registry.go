package state

import (
	"fmt"
	"path/filepath"
	"sync"
)

// states maps the absolute database path to the State managing it.
type states struct {
	mu sync.Mutex
	m  map[string]*State
}

var registry = states{
	m: make(map[string]*State),
}

// Lookup returns the State managing the database at the path.
func Lookup(dbPath string) (*State, bool) {
	key, err := filepath.Abs(dbPath)
	if err != nil {
		return nil, false
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()

	s := registry.m[key]
	return s, s != nil
}

// reserve claims the path. The State is recorded with set once built.
func (r *states) reserve(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.m[key]; exists {
		return fmt.Errorf("database %s is already managed", key)
	}
	r.m[key] = nil

	return nil
}

func (r *states) set(key string, s *State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.m[key] = s
}

func (r *states) release(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.m, key)
}
