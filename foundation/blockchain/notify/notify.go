// Package notify provides a registry of subscribers that are called
// asynchronously when a value is published.
package notify

import (
	"sync"

	"github.com/google/uuid"
)

// Feed maintains a set of subscribers for values of type T. Each feed is an
// independent subscriber list.
type Feed[T any] struct {
	mu   sync.RWMutex
	subs map[string]func(T)
	wg   sync.WaitGroup
}

// New constructs a feed for use.
func New[T any]() *Feed[T] {
	return &Feed[T]{
		subs: make(map[string]func(T)),
	}
}

// Subscribe registers the function and returns a function that removes it.
func (f *Feed[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	id := uuid.NewString()

	f.mu.Lock()
	defer f.mu.Unlock()

	f.subs[id] = fn

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()

		delete(f.subs, id)
	}
}

// Len returns the number of subscribers.
func (f *Feed[T]) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return len(f.subs)
}

// Publish calls every subscriber with the value on a separate goroutine and
// returns immediately. Wait blocks until those goroutines are done.
func (f *Feed[T]) Publish(v T) {
	f.mu.RLock()
	subs := make([]func(T), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.RUnlock()

	if len(subs) == 0 {
		return
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for _, fn := range subs {
			fn(v)
		}
	}()
}

// Wait blocks until every published value has been delivered.
func (f *Feed[T]) Wait() {
	f.wg.Wait()
}
