// Pulse - Real-time Notification and Activity Pipeline Agent
// Copyright 2026 PropDesk Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/propdesk/pulse

// Package counts maintains the console's unread badge state: one total
// counter and six per-category counters, seeded from server snapshots and
// adjusted incrementally by inbound channel events and local mark-read
// signals.
package counts

import (
	"context"
	"strings"
	"sync"

	"github.com/propdesk/pulse/internal/channel"
	"github.com/propdesk/pulse/internal/logging"
	"github.com/propdesk/pulse/internal/metrics"
	"github.com/propdesk/pulse/internal/models"
	"github.com/propdesk/pulse/internal/opsapi"
)

// State is the aggregator lifecycle phase.
type State string

// Aggregator states.
const (
	StateUninitialized State = "uninitialized"
	StateSyncing       State = "syncing"
	StateReady         State = "ready"
	StateCleared       State = "cleared"
)

// Channel is the subset of the realtime client the aggregator consumes.
type Channel interface {
	Connected() bool
	SubscribeNotification(event string, fn func(models.NotificationEvent)) *channel.Subscription
}

// Aggregator tracks unread notification counts for one session.
//
// Counts are server truth at every sync and local best-effort in between:
// a snapshot always overwrites whatever deltas accumulated locally since
// the previous one.
type Aggregator struct {
	api opsapi.Interface
	ch  Channel

	mu          sync.Mutex
	state       State
	total       uint64
	perCategory map[models.Category]uint64
	subs        []*channel.Subscription
	onChange    func(models.CountState)
}

// NewAggregator creates an Aggregator in the Uninitialized state.
func NewAggregator(api opsapi.Interface, ch Channel) *Aggregator {
	a := &Aggregator{
		api:         api,
		ch:          ch,
		state:       StateUninitialized,
		perCategory: make(map[models.Category]uint64, 6),
	}
	for _, cat := range models.Categories() {
		a.perCategory[cat] = 0
	}
	return a
}

// SetOnChange registers a callback invoked with a copy of the count state
// after every mutation. Intended for the UI badge; may be nil.
func (a *Aggregator) SetOnChange(fn func(models.CountState)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onChange = fn
}

// Start syncs counts from the server and subscribes to inbound events.
// The initial sync failing leaves the aggregator at zero until the next
// Sync; event subscriptions are registered regardless so no push is lost
// while the console recovers.
func (a *Aggregator) Start(ctx context.Context) {
	if err := a.Sync(ctx); err != nil {
		logging.Warn().Err(err).Msg("initial count sync failed, starting from zero")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.subs) > 0 {
		return
	}
	for _, event := range countedEvents() {
		sub := a.ch.SubscribeNotification(event, a.handleEvent)
		a.subs = append(a.subs, sub)
	}
}

// Sync fetches the total and per-category snapshots in parallel and
// overwrites the local counts with server truth. Locally accumulated
// deltas since the previous snapshot are discarded.
func (a *Aggregator) Sync(ctx context.Context) error {
	a.setState(StateSyncing)

	var (
		wg          sync.WaitGroup
		total       models.TotalSnapshot
		categories  models.CategorySnapshot
		totalErr    error
		categoryErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		total, totalErr = a.api.FetchTotalUnread(ctx)
	}()
	go func() {
		defer wg.Done()
		categories, categoryErr = a.api.FetchCategoryCounts(ctx)
	}()
	wg.Wait()

	if totalErr != nil || categoryErr != nil {
		metrics.CountsSyncs.WithLabelValues("failure").Inc()
		a.mu.Lock()
		if a.state == StateSyncing {
			a.state = StateReady
		}
		a.mu.Unlock()
		if totalErr != nil {
			logging.Warn().Err(totalErr).Msg("total unread snapshot fetch failed")
			return totalErr
		}
		logging.Warn().Err(categoryErr).Msg("category count snapshot fetch failed")
		return categoryErr
	}

	a.mu.Lock()
	a.total = total.Total
	a.perCategory = categories.ToMap()
	a.state = StateReady
	a.mu.Unlock()

	metrics.CountsSyncs.WithLabelValues("success").Inc()
	a.publish()
	return nil
}

// handleEvent applies a recognized inbound event to the counters: total
// always increments, the category counter increments only when the event
// type maps to one of the six categories.
func (a *Aggregator) handleEvent(ev models.NotificationEvent) {
	a.mu.Lock()
	a.total++
	cat, ok := categoryFor(ev.Type)
	if ok {
		a.perCategory[cat]++
	}
	a.mu.Unlock()

	logging.Debug().Str("type", ev.Type).Bool("categorized", ok).Msg("unread count incremented")
	a.publish()
}

// Decrement reduces counts when one notification is marked read in the UI.
// Both counters floor-clamp at zero. An unrecognized category leaves the
// total untouched too; drift from unmapped-type increments resolves at the
// next sync.
func (a *Aggregator) Decrement(category models.Category) {
	a.mu.Lock()
	current, ok := a.perCategory[category]
	if !ok {
		a.mu.Unlock()
		return
	}
	if current > 0 {
		a.perCategory[category] = current - 1
	}
	if a.total > 0 {
		a.total--
	}
	a.mu.Unlock()
	a.publish()
}

// ClearSection marks a whole category read on the server, zeroes its local
// counter, and re-fetches the total from the server. The total is never
// derived locally here: the total and category counters increment
// independently, so subtraction would drift.
func (a *Aggregator) ClearSection(ctx context.Context, category models.Category) error {
	if err := a.api.MarkSectionRead(ctx, category); err != nil {
		return err
	}

	a.mu.Lock()
	a.perCategory[category] = 0
	a.mu.Unlock()

	total, err := a.api.FetchTotalUnread(ctx)
	if err != nil {
		logging.Warn().Err(err).Str("category", string(category)).Msg("total re-fetch after section clear failed")
		a.publish()
		return nil
	}

	a.mu.Lock()
	a.total = total.Total
	a.mu.Unlock()
	a.publish()
	return nil
}

// Reset zeroes all counts and drops event subscriptions, for logout.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.total = 0
	for cat := range a.perCategory {
		a.perCategory[cat] = 0
	}
	a.state = StateCleared
	subs := a.subs
	a.subs = nil
	a.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	a.publish()
}

// Snapshot returns a copy of the current count state.
func (a *Aggregator) Snapshot() models.CountState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// CurrentState returns the lifecycle phase.
func (a *Aggregator) CurrentState() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Aggregator) snapshotLocked() models.CountState {
	per := make(map[models.Category]uint64, len(a.perCategory))
	for cat, n := range a.perCategory {
		per[cat] = n
	}
	return models.CountState{Total: a.total, PerCategory: per}
}

func (a *Aggregator) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// publish pushes the current state to the metrics gauge and the UI callback.
func (a *Aggregator) publish() {
	a.mu.Lock()
	snap := a.snapshotLocked()
	fn := a.onChange
	a.mu.Unlock()

	metrics.CountsTotalUnread.Set(float64(snap.Total))
	if fn != nil {
		fn(snap)
	}
}

// countedEvents lists the inbound event names that move the counters.
func countedEvents() []string {
	return []string{
		models.EventNewNotification,
		models.EventNotification,
		models.EventTaskAssigned,
		models.EventTaskStatusUpdate,
		models.EventNewLead,
		models.EventLeadAssigned,
		models.EventChatMessage,
		models.EventPrivateMessage,
		models.EventAnnouncement,
		models.EventNewAnnouncement,
		models.EventUserAdded,
	}
}

// categoryFor maps an event type to its badge category. The type may be an
// event name from the channel or an uppercase payload type carried inside a
// generic notification frame.
func categoryFor(eventType string) (models.Category, bool) {
	switch eventType {
	case models.EventTaskAssigned, models.EventTaskStatusUpdate, "TASK_ASSIGNED", "TASK_STATUS_UPDATED":
		return models.CategoryTasks, true
	case models.EventNewLead, models.EventLeadAssigned, "LEAD_ASSIGNED", "NEW_LEAD":
		return models.CategoryLeads, true
	case models.EventChatMessage, models.EventPrivateMessage:
		return models.CategoryTeamChat, true
	case models.EventAnnouncement, models.EventNewAnnouncement:
		return models.CategoryAnnouncements, true
	}
	if strings.HasPrefix(eventType, "CALLER_") {
		return models.CategoryCallers, true
	}
	if strings.HasPrefix(eventType, "CALENDAR_") {
		return models.CategoryCalendar, true
	}
	return "", false
}
