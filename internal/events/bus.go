// Package events is an in-process pub/sub bus for trading activity.
package events

import (
	"sync"
	"time"
)

// Bus is a lightweight pub/sub broker using channels. Publishing never
// blocks; slow subscribers miss messages.
type Bus struct {
	mu   sync.RWMutex
	subs map[Event][]chan Message
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Event][]chan Message)}
}

// Subscribe registers one channel for all of topics and returns it with an
// unsubscribe function.
func (b *Bus) Subscribe(buffer int, topics ...Event) (<-chan Message, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Message, buffer)
	for _, e := range topics {
		b.subs[e] = append(b.subs[e], ch)
	}

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for _, e := range topics {
				subs := b.subs[e]
				for i, c := range subs {
					if c == ch {
						b.subs[e] = append(subs[:i], subs[i+1:]...)
						break
					}
				}
			}
			close(ch)
		})
	}
	return ch, unsub
}

// Publish fans the payload out to subscribers of e. A nil Bus drops it.
func (b *Bus) Publish(e Event, user string, payload any) {
	if b == nil {
		return
	}
	msg := Message{Event: e, Time: time.Now().UTC(), User: user, Data: payload}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[e] {
		select {
		case ch <- msg:
		default:
		}
	}
}
