// Pulse - Real-time Notification and Activity Pipeline Agent
// Copyright 2026 PropDesk Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/propdesk/pulse

package channel

import (
	"sync"

	"github.com/goccy/go-json"
)

// Subscription is a disposable handle to a registered event handler.
// Consumers store the handle and call Unsubscribe on teardown so no
// callback referencing a stale closure outlives its owner.
type Subscription struct {
	table *subscriptionTable
	event string
	id    uint64
}

// Unsubscribe deregisters the handler without affecting other subscribers
// of the same event. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.table == nil {
		return
	}
	s.table.remove(s.event, s.id)
}

type subscriber struct {
	id uint64
	fn func(json.RawMessage)
}

// subscriptionTable maps event name to an ordered handler list.
type subscriptionTable struct {
	mu     sync.RWMutex
	nextID uint64
	byName map[string][]subscriber
}

func newSubscriptionTable() *subscriptionTable {
	return &subscriptionTable{byName: make(map[string][]subscriber)}
}

func (t *subscriptionTable) add(event string, fn func(json.RawMessage)) *Subscription {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	t.byName[event] = append(t.byName[event], subscriber{id: t.nextID, fn: fn})
	return &Subscription{table: t, event: event, id: t.nextID}
}

func (t *subscriptionTable) remove(event string, id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	subs := t.byName[event]
	for i := range subs {
		if subs[i].id == id {
			t.byName[event] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(t.byName[event]) == 0 {
		delete(t.byName, event)
	}
}

// handlers returns a snapshot of the handlers for event, in registration
// order. The snapshot lets dispatch run without holding the lock, so a
// handler may itself subscribe or unsubscribe.
func (t *subscriptionTable) handlers(event string) []func(json.RawMessage) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	subs := t.byName[event]
	if len(subs) == 0 {
		return nil
	}
	fns := make([]func(json.RawMessage), len(subs))
	for i := range subs {
		fns[i] = subs[i].fn
	}
	return fns
}

func (t *subscriptionTable) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byName = make(map[string][]subscriber)
}

// len reports the number of live subscriptions across all events.
func (t *subscriptionTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, subs := range t.byName {
		n += len(subs)
	}
	return n
}
