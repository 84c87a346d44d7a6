// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

package fanout

import (
	"sync"
	"sync/atomic"

	"github.com/brewshed/brewshed/lib/schema"
)

// DefaultBufferSize is the per-subscriber event buffer capacity. At
// the session manager's default 30-second flush interval, 64 slots is
// over half an hour of backlog before a subscriber starts losing
// events.
const DefaultBufferSize = 64

// Subscriber is one registered consumer of bus events. The stream
// handler reads from Events; the bus writes to it from Publish. The
// pattern set is fixed at Subscribe time.
type Subscriber struct {
	events   chan schema.StreamEvent
	patterns []string
	dropped  atomic.Uint64
}

// Events returns the channel the bus delivers matching events on. The
// channel is never closed; consumers stop reading after Unsubscribe.
func (s *Subscriber) Events() <-chan schema.StreamEvent {
	return s.events
}

// Dropped returns the total number of events the bus has discarded
// for this subscriber since it was registered.
func (s *Subscriber) Dropped() uint64 {
	return s.dropped.Load()
}

// Bus fans events out to subscribers. The zero value is not usable;
// construct with New.
type Bus struct {
	buffer int

	mu          sync.RWMutex
	subscribers []*Subscriber

	dropped atomic.Uint64
}

// New returns a Bus whose subscribers buffer up to bufferSize events.
// A non-positive bufferSize selects DefaultBufferSize.
func New(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Bus{buffer: bufferSize}
}

// Subscribe registers a consumer for events whose channel name matches
// any of the given glob patterns. An empty pattern set matches every
// channel. The subscriber receives events published after Subscribe
// returns, so callers should register before acknowledging a client's
// handshake.
func (b *Bus) Subscribe(patterns ...string) *Subscriber {
	subscriber := &Subscriber{
		events:   make(chan schema.StreamEvent, b.buffer),
		patterns: patterns,
	}
	b.mu.Lock()
	b.subscribers = append(b.subscribers, subscriber)
	b.mu.Unlock()
	return subscriber
}

// Unsubscribe removes a subscriber. After it returns, the bus will not
// send on the subscriber's channel again; events already buffered stay
// readable.
func (b *Bus) Unsubscribe(subscriber *Subscriber) {
	b.mu.Lock()
	for i, existing := range b.subscribers {
		if existing == subscriber {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
}

// Publish delivers an event to every subscriber whose patterns match
// the event's channel. When a subscriber's buffer is full, the oldest
// queued event is evicted to make room, and the eviction counts
// against both the subscriber's and the bus's drop totals. Publish
// never blocks.
func (b *Bus) Publish(event schema.StreamEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, subscriber := range b.subscribers {
		if !schema.MatchChannel(subscriber.patterns, event.Channel) {
			continue
		}
		select {
		case subscriber.events <- event:
			continue
		default:
		}

		// Full buffer: evict the oldest event, then retry once.
		select {
		case <-subscriber.events:
			subscriber.dropped.Add(1)
			b.dropped.Add(1)
		default:
		}
		select {
		case subscriber.events <- event:
		default:
			// A concurrent publisher refilled the slot; this event
			// is the one lost.
			subscriber.dropped.Add(1)
			b.dropped.Add(1)
		}
	}
}

// HasSubscribers reports whether any subscribers are registered.
// Publishers use it to skip event construction when nobody is
// listening.
func (b *Bus) HasSubscribers() bool {
	b.mu.RLock()
	hasAny := len(b.subscribers) > 0
	b.mu.RUnlock()
	return hasAny
}

// SubscriberCount returns the number of registered subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	count := len(b.subscribers)
	b.mu.RUnlock()
	return count
}

// Dropped returns the total number of events discarded across all
// subscribers since the bus was created.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}
