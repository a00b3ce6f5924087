// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import "sync"

// EventType identifies a registry notification.
type EventType string

const (
	// EventCommandRegistered fires after a successful Register call
	EventCommandRegistered EventType = "command-registered"

	// EventCommandsChanged fires whenever the set of commands changed
	EventCommandsChanged EventType = "commands-changed"
)

// Event is a registry notification. AgentID and Command are set for
// EventCommandRegistered only.
type Event struct {
	Type    EventType
	AgentID string
	Command string
}

// notifier fans events out to subscribers without blocking the registry.
// A subscriber whose buffer is full misses events rather than stalling writers.
type notifier struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[int]chan Event)}
}

func (n *notifier) subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subs[id] = ch
	n.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (n *notifier) publish(ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
