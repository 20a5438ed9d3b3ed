// Package events allows for the registering and receiving of events.
package events

import (
	"fmt"
	"sync"
)

// Event is a message published under a topic.
type Event struct {
	Topic string `json:"topic"`
	Data  string `json:"data"`
}

// subscriber is a registered receiver and the topics it asked for. An empty
// topic set receives everything.
type subscriber struct {
	ch     chan Event
	topics map[string]bool
}

func (s subscriber) wants(topic string) bool {
	return len(s.topics) == 0 || s.topics[topic]
}

// Events maintains a mapping of unique id and channels so goroutines
// can register and receive events.
type Events struct {
	m  map[string]subscriber
	mu sync.RWMutex
}

// New constructs an events for registering and receiving events.
func New() *Events {
	return &Events{
		m: make(map[string]subscriber),
	}
}

// Shutdown closes and removes all channels that were provided by
// the call to Acquire.
func (evt *Events) Shutdown() {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	for id, sub := range evt.m {
		delete(evt.m, id)
		close(sub.ch)
	}
}

// Acquire takes a unique id and the topics of interest and returns a channel
// that can be used to receive events.
func (evt *Events) Acquire(id string, topics ...string) chan Event {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	if sub, exists := evt.m[id]; exists {
		return sub.ch
	}

	// A message is dropped when the websocket receiver is not ready, this
	// buffer absorbs slow writes.
	const messageBuffer = 100

	sub := subscriber{
		ch:     make(chan Event, messageBuffer),
		topics: make(map[string]bool, len(topics)),
	}
	for _, topic := range topics {
		sub.topics[topic] = true
	}

	evt.m[id] = sub
	return sub.ch
}

// Release closes and removes the channel that was provided by
// the call to Acquire.
func (evt *Events) Release(id string) error {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	sub, exists := evt.m[id]
	if !exists {
		return fmt.Errorf("id %q does not exist", id)
	}

	delete(evt.m, id)
	close(sub.ch)
	return nil
}

// Len returns the number of registered receivers.
func (evt *Events) Len() int {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	return len(evt.m)
}

// Send signals a message to every channel registered for the topic. Send
// will not block waiting for a receiver on any given channel.
func (evt *Events) Send(topic string, data string) {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	e := Event{Topic: topic, Data: data}
	for _, sub := range evt.m {
		if !sub.wants(topic) {
			continue
		}

		select {
		case sub.ch <- e:
		default:
		}
	}
}
