// Pulse - Real-time Notification and Activity Pipeline Agent
// Copyright 2026 PropDesk Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/propdesk/pulse

package counts

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/propdesk/pulse/internal/channel"
	"github.com/propdesk/pulse/internal/models"
)

// fakeAPI is a scriptable ops API double.
type fakeAPI struct {
	mu           sync.Mutex
	total        models.TotalSnapshot
	categories   models.CategorySnapshot
	totalErr     error
	categoryErr  error
	markErr      error
	totalFetches int
	marked       []models.Category
}

func (f *fakeAPI) FetchTotalUnread(context.Context) (models.TotalSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.totalFetches++
	return f.total, f.totalErr
}

func (f *fakeAPI) FetchCategoryCounts(context.Context) (models.CategorySnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.categories, f.categoryErr
}

func (f *fakeAPI) MarkSectionRead(_ context.Context, category models.Category) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, category)
	return f.markErr
}

func (f *fakeAPI) FetchTodaysReminders(context.Context) ([]models.Reminder, error) {
	return nil, nil
}

func (f *fakeAPI) LogActivity(context.Context, models.ActivityRecord) error {
	return nil
}

// fakeChannel records event subscriptions and lets tests push events.
type fakeChannel struct {
	mu       sync.Mutex
	handlers map[string][]func(models.NotificationEvent)
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{handlers: make(map[string][]func(models.NotificationEvent))}
}

func (f *fakeChannel) Connected() bool { return true }

func (f *fakeChannel) SubscribeNotification(event string, fn func(models.NotificationEvent)) *channel.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = append(f.handlers[event], fn)
	return nil
}

func (f *fakeChannel) push(event string, ev models.NotificationEvent) {
	f.mu.Lock()
	fns := append([]func(models.NotificationEvent){}, f.handlers[event]...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func readyAggregator(t *testing.T, api *fakeAPI, ch *fakeChannel) *Aggregator {
	t.Helper()
	agg := NewAggregator(api, ch)
	agg.Start(context.Background())
	if got := agg.CurrentState(); got != StateReady {
		t.Fatalf("state after start = %q, want %q", got, StateReady)
	}
	return agg
}

func TestSyncSeedsCountsFromServer(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{
		total:      models.TotalSnapshot{Total: 12},
		categories: models.CategorySnapshot{Leads: 5, Tasks: 3, TeamChat: 1},
	}
	agg := readyAggregator(t, api, newFakeChannel())

	snap := agg.Snapshot()
	if snap.Total != 12 {
		t.Errorf("Total = %d, want 12", snap.Total)
	}
	if snap.PerCategory[models.CategoryLeads] != 5 {
		t.Errorf("leads = %d, want 5", snap.PerCategory[models.CategoryLeads])
	}
	if snap.PerCategory[models.CategoryCalendar] != 0 {
		t.Errorf("calendar = %d, want 0", snap.PerCategory[models.CategoryCalendar])
	}
}

func TestSyncFailureKeepsLastKnownGood(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{total: models.TotalSnapshot{Total: 7}, categories: models.CategorySnapshot{Tasks: 2}}
	agg := readyAggregator(t, api, newFakeChannel())

	api.mu.Lock()
	api.totalErr = errors.New("console unreachable")
	api.mu.Unlock()

	if err := agg.Sync(context.Background()); err == nil {
		t.Fatal("expected sync error")
	}

	snap := agg.Snapshot()
	if snap.Total != 7 || snap.PerCategory[models.CategoryTasks] != 2 {
		t.Errorf("counts = %d/%d, want last-known-good 7/2", snap.Total, snap.PerCategory[models.CategoryTasks])
	}
	if got := agg.CurrentState(); got != StateReady {
		t.Errorf("state after failed sync = %q, want %q", got, StateReady)
	}
}

func TestTaskAssignedIncrementsTotalAndTasksOnly(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{total: models.TotalSnapshot{Total: 10}, categories: models.CategorySnapshot{Tasks: 4, Leads: 2}}
	ch := newFakeChannel()
	agg := readyAggregator(t, api, ch)

	ch.push(models.EventNewNotification, models.NotificationEvent{Type: "TASK_ASSIGNED"})

	snap := agg.Snapshot()
	if snap.Total != 11 {
		t.Errorf("Total = %d, want 11", snap.Total)
	}
	if snap.PerCategory[models.CategoryTasks] != 5 {
		t.Errorf("tasks = %d, want 5", snap.PerCategory[models.CategoryTasks])
	}
	if snap.PerCategory[models.CategoryLeads] != 2 {
		t.Errorf("leads = %d, want 2 (unchanged)", snap.PerCategory[models.CategoryLeads])
	}
}

func TestUnmappedTypeIncrementsTotalOnly(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{total: models.TotalSnapshot{Total: 3}}
	ch := newFakeChannel()
	agg := readyAggregator(t, api, ch)

	ch.push(models.EventUserAdded, models.NotificationEvent{Type: models.EventUserAdded})

	snap := agg.Snapshot()
	if snap.Total != 4 {
		t.Errorf("Total = %d, want 4", snap.Total)
	}
	for cat, n := range snap.PerCategory {
		if n != 0 {
			t.Errorf("category %s = %d, want 0", cat, n)
		}
	}
}

func TestCallerAndCalendarPayloadTypes(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	ch := newFakeChannel()
	agg := readyAggregator(t, api, ch)

	ch.push(models.EventNotification, models.NotificationEvent{Type: "CALLER_FOLLOWUP_DUE"})
	ch.push(models.EventNotification, models.NotificationEvent{Type: "CALENDAR_EVENT_STARTING"})

	snap := agg.Snapshot()
	if snap.PerCategory[models.CategoryCallers] != 1 {
		t.Errorf("callers = %d, want 1", snap.PerCategory[models.CategoryCallers])
	}
	if snap.PerCategory[models.CategoryCalendar] != 1 {
		t.Errorf("calendar = %d, want 1", snap.PerCategory[models.CategoryCalendar])
	}
	if snap.Total != 2 {
		t.Errorf("Total = %d, want 2", snap.Total)
	}
}

func TestDecrementClampsAtZero(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{total: models.TotalSnapshot{Total: 1}, categories: models.CategorySnapshot{TeamChat: 1}}
	agg := readyAggregator(t, api, newFakeChannel())

	for i := 0; i < 3; i++ {
		agg.Decrement(models.CategoryTeamChat)
	}

	snap := agg.Snapshot()
	if snap.Total != 0 {
		t.Errorf("Total = %d, want 0", snap.Total)
	}
	if snap.PerCategory[models.CategoryTeamChat] != 0 {
		t.Errorf("teamChat = %d, want 0", snap.PerCategory[models.CategoryTeamChat])
	}
}

func TestDecrementUnknownCategoryIsNoOp(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{total: models.TotalSnapshot{Total: 5}}
	agg := readyAggregator(t, api, newFakeChannel())

	agg.Decrement(models.Category("bogus"))

	if snap := agg.Snapshot(); snap.Total != 5 {
		t.Errorf("Total = %d, want 5 (unknown category ignored)", snap.Total)
	}
}

func TestRefreshSnapshotWinsOverLocalDeltas(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{total: models.TotalSnapshot{Total: 2}, categories: models.CategorySnapshot{Leads: 1}}
	ch := newFakeChannel()
	agg := readyAggregator(t, api, ch)

	ch.push(models.EventNewLead, models.NotificationEvent{Type: models.EventNewLead})
	ch.push(models.EventNewLead, models.NotificationEvent{Type: models.EventNewLead})

	api.mu.Lock()
	api.total = models.TotalSnapshot{Total: 1}
	api.categories = models.CategorySnapshot{Leads: 0}
	api.mu.Unlock()

	if err := agg.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	snap := agg.Snapshot()
	if snap.Total != 1 || snap.PerCategory[models.CategoryLeads] != 0 {
		t.Errorf("counts = %d/%d, want server snapshot 1/0", snap.Total, snap.PerCategory[models.CategoryLeads])
	}
}

func TestClearSectionUsesFreshServerTotal(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{total: models.TotalSnapshot{Total: 12}, categories: models.CategorySnapshot{Leads: 5, Tasks: 3}}
	agg := readyAggregator(t, api, newFakeChannel())

	// Server reports 4 remaining after leads are marked read, which is not
	// 12 - 5: the total and category counters increment independently.
	api.mu.Lock()
	api.total = models.TotalSnapshot{Total: 4}
	api.mu.Unlock()

	if err := agg.ClearSection(context.Background(), models.CategoryLeads); err != nil {
		t.Fatalf("ClearSection: %v", err)
	}

	snap := agg.Snapshot()
	if snap.PerCategory[models.CategoryLeads] != 0 {
		t.Errorf("leads = %d, want 0", snap.PerCategory[models.CategoryLeads])
	}
	if snap.Total != 4 {
		t.Errorf("Total = %d, want fresh server total 4", snap.Total)
	}
	api.mu.Lock()
	marked := append([]models.Category{}, api.marked...)
	api.mu.Unlock()
	if len(marked) != 1 || marked[0] != models.CategoryLeads {
		t.Errorf("marked = %v, want [leads]", marked)
	}
}

func TestClearSectionServerErrorLeavesCounts(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{total: models.TotalSnapshot{Total: 9}, categories: models.CategorySnapshot{Tasks: 4}}
	agg := readyAggregator(t, api, newFakeChannel())

	api.mu.Lock()
	api.markErr = errors.New("write rejected")
	api.mu.Unlock()

	if err := agg.ClearSection(context.Background(), models.CategoryTasks); err == nil {
		t.Fatal("expected error from failed mark-read")
	}

	snap := agg.Snapshot()
	if snap.Total != 9 || snap.PerCategory[models.CategoryTasks] != 4 {
		t.Errorf("counts = %d/%d, want unchanged 9/4", snap.Total, snap.PerCategory[models.CategoryTasks])
	}
}

func TestResetZeroesCounts(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{total: models.TotalSnapshot{Total: 6}, categories: models.CategorySnapshot{Leads: 2}}
	ch := newFakeChannel()
	agg := readyAggregator(t, api, ch)

	agg.Reset()

	snap := agg.Snapshot()
	if snap.Total != 0 {
		t.Errorf("Total = %d, want 0 after reset", snap.Total)
	}
	for cat, n := range snap.PerCategory {
		if n != 0 {
			t.Errorf("category %s = %d, want 0 after reset", cat, n)
		}
	}
	if got := agg.CurrentState(); got != StateCleared {
		t.Errorf("state = %q, want %q", got, StateCleared)
	}
}

func TestOnChangeObservesMutations(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{total: models.TotalSnapshot{Total: 1}}
	ch := newFakeChannel()
	agg := NewAggregator(api, ch)

	var (
		mu   sync.Mutex
		last models.CountState
	)
	agg.SetOnChange(func(s models.CountState) {
		mu.Lock()
		last = s
		mu.Unlock()
	})
	agg.Start(context.Background())

	ch.push(models.EventChatMessage, models.NotificationEvent{Type: models.EventChatMessage})

	mu.Lock()
	defer mu.Unlock()
	if last.Total != 2 {
		t.Errorf("observed Total = %d, want 2", last.Total)
	}
	if last.PerCategory[models.CategoryTeamChat] != 1 {
		t.Errorf("observed teamChat = %d, want 1", last.PerCategory[models.CategoryTeamChat])
	}
}
