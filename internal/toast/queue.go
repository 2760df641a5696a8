// Pulse - Real-time Notification and Activity Pipeline Agent
// Copyright 2026 PropDesk Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/propdesk/pulse

// Package toast manages the transient notification pop-ups of the console.
// Every inbound notification becomes an independent record with its own
// lifecycle timers; the queue imposes no cap and performs no duplicate
// suppression.
package toast

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/propdesk/pulse/internal/channel"
	"github.com/propdesk/pulse/internal/logging"
	"github.com/propdesk/pulse/internal/metrics"
	"github.com/propdesk/pulse/internal/models"
)

// Phase is the display phase of one toast.
type Phase string

// Toast phases. A toast leaves the queue entirely when its exit phase
// elapses, so "removed" is not a stored phase.
const (
	PhaseVisible Phase = "visible"
	PhaseExiting Phase = "exiting"
)

// Toast is one queued pop-up.
type Toast struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"createdAt"`
	Link      string    `json:"link,omitempty"`
	Phase     Phase     `json:"phase"`
}

// Config controls the phase timers.
type Config struct {
	// VisibleFor is how long a toast stays fully visible before its exit
	// animation starts. Hovering suspends this window.
	VisibleFor time.Duration
	// ExitFor is how long the exit phase lasts before removal.
	ExitFor time.Duration
}

// DefaultConfig returns the production timer windows.
func DefaultConfig() Config {
	return Config{VisibleFor: 3 * time.Second, ExitFor: time.Second}
}

// Channel is the subset of the realtime client the queue consumes.
type Channel interface {
	SubscribeNotification(event string, fn func(models.NotificationEvent)) *channel.Subscription
}

type entry struct {
	toast Toast

	visibleTimer *time.Timer
	exitTimer    *time.Timer

	// deadline is when the visible phase ends; remaining holds the unspent
	// visible window while the toast is hovered.
	deadline  time.Time
	remaining time.Duration
	hovered   bool
}

// Queue holds the live toasts, in insertion order.
type Queue struct {
	cfg Config

	mu      sync.Mutex
	entries []*entry
	byID    map[string]*entry
	entropy *ulid.MonotonicEntropy
	subs    []*channel.Subscription
	closed  bool

	onChange func([]Toast)
}

// NewQueue creates an empty toast queue.
func NewQueue(cfg Config) *Queue {
	def := DefaultConfig()
	if cfg.VisibleFor <= 0 {
		cfg.VisibleFor = def.VisibleFor
	}
	if cfg.ExitFor <= 0 {
		cfg.ExitFor = def.ExitFor
	}
	return &Queue{
		cfg:     cfg,
		byID:    make(map[string]*entry),
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// SetOnChange registers a callback invoked with the current stack after
// every mutation. Intended for the UI renderer; may be nil.
func (q *Queue) SetOnChange(fn func([]Toast)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onChange = fn
}

// Attach subscribes the queue to the toast-worthy inbound events so every
// pushed notification produces a pop-up.
func (q *Queue) Attach(ch Channel) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.subs) > 0 {
		return
	}
	for _, event := range toastEvents() {
		sub := ch.SubscribeNotification(event, func(ev models.NotificationEvent) {
			q.ShowNotification(ev)
		})
		q.subs = append(q.subs, sub)
	}
}

// ShowNotification enqueues a toast for an inbound notification event.
func (q *Queue) ShowNotification(ev models.NotificationEvent) string {
	return q.Show(Toast{
		Type:      ev.Type,
		Title:     ev.Title,
		Message:   ev.Message,
		Timestamp: ev.Timestamp,
		Link:      ev.Link,
	})
}

// Show enqueues a toast and starts its visible-phase timer. The record's
// ID, CreatedAt, and Phase are assigned here; any caller-supplied values
// for them are ignored. Returns the assigned id.
func (q *Queue) Show(t Toast) string {
	now := time.Now()

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ""
	}

	t.ID = ulid.MustNew(ulid.Timestamp(now), q.entropy).String()
	t.CreatedAt = now
	t.Phase = PhaseVisible
	if t.Timestamp.IsZero() {
		t.Timestamp = now
	}

	e := &entry{toast: t, deadline: now.Add(q.cfg.VisibleFor)}
	id := t.ID
	e.visibleTimer = time.AfterFunc(q.cfg.VisibleFor, func() { q.beginExit(id) })
	q.entries = append(q.entries, e)
	q.byID[id] = e
	q.mu.Unlock()

	metrics.ToastsShown.Inc()
	logging.Debug().Str("id", id).Str("type", t.Type).Msg("toast shown")
	q.publish()
	return id
}

// Hover suspends the visible-phase timer for id. The unspent window is
// kept, not reset: a toast hovered at 2.9s has 0.1s left when hovering
// ends. No effect once the exit phase has begun.
func (q *Queue) Hover(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.byID[id]
	if !ok || e.hovered || e.toast.Phase != PhaseVisible {
		return
	}
	if !e.visibleTimer.Stop() {
		// Timer already fired; the exit transition is in flight.
		return
	}
	e.hovered = true
	e.remaining = time.Until(e.deadline)
	if e.remaining < 0 {
		e.remaining = 0
	}
}

// Unhover resumes the visible-phase timer with whatever window remained
// when Hover suspended it.
func (q *Queue) Unhover(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.byID[id]
	if !ok || !e.hovered {
		return
	}
	e.hovered = false
	e.deadline = time.Now().Add(e.remaining)
	e.visibleTimer.Reset(e.remaining)
}

// Remove dismisses a toast at any phase, canceling its pending timers so
// no expiry fires against a record that is already gone. Unknown ids are
// ignored.
func (q *Queue) Remove(id string) {
	q.remove(id, "dismissed")
}

// Active returns the live toasts in insertion order.
func (q *Queue) Active() []Toast {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.activeLocked()
}

// Stop cancels every pending timer, clears the queue, and drops the event
// subscriptions. Safe to call more than once; Show after Stop is a no-op.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	for _, e := range q.entries {
		stopTimers(e)
	}
	q.entries = nil
	q.byID = make(map[string]*entry)
	subs := q.subs
	q.subs = nil
	q.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

// beginExit moves a toast from visible to exiting and arms the removal
// timer. Racing Remove calls are resolved by the id lookup.
func (q *Queue) beginExit(id string) {
	q.mu.Lock()
	e, ok := q.byID[id]
	if !ok || e.toast.Phase != PhaseVisible || e.hovered {
		q.mu.Unlock()
		return
	}
	e.toast.Phase = PhaseExiting
	e.exitTimer = time.AfterFunc(q.cfg.ExitFor, func() { q.remove(id, "expired") })
	q.mu.Unlock()

	q.publish()
}

func (q *Queue) remove(id string, cause string) {
	q.mu.Lock()
	e, ok := q.byID[id]
	if !ok {
		q.mu.Unlock()
		return
	}
	stopTimers(e)
	delete(q.byID, id)
	for i := range q.entries {
		if q.entries[i] == e {
			q.entries = append(q.entries[:i:i], q.entries[i+1:]...)
			break
		}
	}
	q.mu.Unlock()

	metrics.ToastsRemoved.WithLabelValues(cause).Inc()
	q.publish()
}

func (q *Queue) activeLocked() []Toast {
	out := make([]Toast, len(q.entries))
	for i, e := range q.entries {
		out[i] = e.toast
	}
	return out
}

func (q *Queue) publish() {
	q.mu.Lock()
	fn := q.onChange
	var snap []Toast
	if fn != nil {
		snap = q.activeLocked()
	}
	q.mu.Unlock()

	if fn != nil {
		fn(snap)
	}
}

func stopTimers(e *entry) {
	if e.visibleTimer != nil {
		e.visibleTimer.Stop()
	}
	if e.exitTimer != nil {
		e.exitTimer.Stop()
	}
}

// toastEvents lists the inbound events that produce a pop-up.
func toastEvents() []string {
	return []string{
		models.EventNewNotification,
		models.EventNotification,
		models.EventTaskAssigned,
		models.EventNewLead,
		models.EventLeadAssigned,
		models.EventChatMessage,
		models.EventPrivateMessage,
		models.EventAnnouncement,
		models.EventNewAnnouncement,
	}
}
