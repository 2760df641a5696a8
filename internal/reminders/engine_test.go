// Pulse - Real-time Notification and Activity Pipeline Agent
// Copyright 2026 PropDesk Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/propdesk/pulse

package reminders

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/propdesk/pulse/internal/channel"
	"github.com/propdesk/pulse/internal/kvstore"
	"github.com/propdesk/pulse/internal/models"
)

// fakeAPI serves a scriptable today's-reminders snapshot.
type fakeAPI struct {
	mu        sync.Mutex
	reminders []models.Reminder
	fetches   int
}

func (f *fakeAPI) set(reminders ...models.Reminder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reminders = reminders
}

func (f *fakeAPI) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func (f *fakeAPI) FetchTodaysReminders(context.Context) ([]models.Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	out := make([]models.Reminder, len(f.reminders))
	copy(out, f.reminders)
	return out, nil
}

func (f *fakeAPI) FetchTotalUnread(context.Context) (models.TotalSnapshot, error) {
	return models.TotalSnapshot{}, nil
}

func (f *fakeAPI) FetchCategoryCounts(context.Context) (models.CategorySnapshot, error) {
	return models.CategorySnapshot{}, nil
}

func (f *fakeAPI) MarkSectionRead(context.Context, models.Category) error { return nil }

func (f *fakeAPI) LogActivity(context.Context, models.ActivityRecord) error { return nil }

// fakeChannel records raw subscriptions and lets tests push events and
// toggle the connected flag.
type fakeChannel struct {
	mu        sync.Mutex
	connected bool
	handlers  map[string][]func(json.RawMessage)
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{connected: true, handlers: make(map[string][]func(json.RawMessage))}
}

func (f *fakeChannel) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeChannel) setConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}

func (f *fakeChannel) Subscribe(event string, fn func(json.RawMessage)) *channel.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = append(f.handlers[event], fn)
	return nil
}

func (f *fakeChannel) push(event string) {
	f.mu.Lock()
	fns := append([]func(json.RawMessage){}, f.handlers[event]...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(json.RawMessage(`{}`))
	}
}

func testEngine(api *fakeAPI, ch *fakeChannel) (*Engine, kvstore.Store) {
	store := kvstore.NewMemoryStore()
	// Long timers keep the background loop quiet; tests drive Refresh
	// directly or through the debouncer.
	eng := NewEngine(api, store, ch, Config{
		InitialDelay:  time.Hour,
		PollInterval:  time.Hour,
		DebounceDelay: 20 * time.Millisecond,
	})
	return eng, store
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func reminderIDs(list []models.Reminder) []string {
	ids := make([]string, len(list))
	for i, r := range list {
		ids[i] = r.ID
	}
	return ids
}

func TestDismissedReminderStaysSuppressedSameDay(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	api.set(models.Reminder{ID: "r1"}, models.Reminder{ID: "r2"})
	eng, _ := testEngine(api, newFakeChannel())

	eng.Refresh(context.Background(), "poll")
	if got := reminderIDs(eng.Active()); len(got) != 2 {
		t.Fatalf("active = %v, want [r1 r2]", got)
	}

	if err := eng.DismissReminder("r1"); err != nil {
		t.Fatalf("DismissReminder: %v", err)
	}
	if got := reminderIDs(eng.Active()); len(got) != 1 || got[0] != "r2" {
		t.Fatalf("active after dismiss = %v, want [r2]", got)
	}

	api.set(models.Reminder{ID: "r1"}, models.Reminder{ID: "r2"}, models.Reminder{ID: "r3"})
	eng.Refresh(context.Background(), "poll")

	got := reminderIDs(eng.Active())
	if len(got) != 2 || got[0] != "r2" || got[1] != "r3" {
		t.Errorf("active after refetch = %v, want [r2 r3]", got)
	}
}

func TestNewCalendarDayResetsDismissals(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	api.set(models.Reminder{ID: "r1"})
	eng, _ := testEngine(api, newFakeChannel())

	day1 := time.Date(2026, time.September, 1, 16, 0, 0, 0, time.UTC)
	eng.SetClock(func() time.Time { return day1 })

	eng.Refresh(context.Background(), "poll")
	if err := eng.DismissReminder("r1"); err != nil {
		t.Fatalf("DismissReminder: %v", err)
	}

	eng.Refresh(context.Background(), "poll")
	if got := eng.Active(); len(got) != 0 {
		t.Fatalf("active same day = %v, want empty", reminderIDs(got))
	}

	eng.SetClock(func() time.Time { return day1.AddDate(0, 0, 1) })
	eng.Refresh(context.Background(), "poll")

	got := reminderIDs(eng.Active())
	if len(got) != 1 || got[0] != "r1" {
		t.Errorf("active next day = %v, want [r1]", got)
	}
}

func TestDismissAllThenNonEmptyFetchReopensPopup(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	api.set(models.Reminder{ID: "r1"}, models.Reminder{ID: "r2"})
	eng, _ := testEngine(api, newFakeChannel())

	eng.Refresh(context.Background(), "poll")
	if !eng.PopupVisible() {
		t.Fatal("popup not shown for non-empty fetch")
	}

	if err := eng.DismissAll(); err != nil {
		t.Fatalf("DismissAll: %v", err)
	}
	if eng.PopupVisible() || len(eng.Active()) != 0 {
		t.Fatalf("popup=%v active=%v, want hidden and empty", eng.PopupVisible(), eng.Active())
	}

	api.set(models.Reminder{ID: "r3"})
	eng.Refresh(context.Background(), "poll")

	if !eng.PopupVisible() {
		t.Error("popup not reopened for fresh non-empty fetch")
	}
	if got := reminderIDs(eng.Active()); len(got) != 1 || got[0] != "r3" {
		t.Errorf("active = %v, want [r3]", got)
	}
}

func TestClosingPopupKeepsActiveList(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	api.set(models.Reminder{ID: "r1"})
	eng, _ := testEngine(api, newFakeChannel())

	eng.Refresh(context.Background(), "poll")
	eng.SetPopupVisible(false)

	if eng.PopupVisible() {
		t.Error("popup still visible after close")
	}
	if got := reminderIDs(eng.Active()); len(got) != 1 || got[0] != "r1" {
		t.Errorf("active = %v, want [r1] intact after close", got)
	}

	eng.SetPopupVisible(true)
	if !eng.PopupVisible() {
		t.Error("popup did not reopen")
	}
}

func TestCorruptDismissalSetReadsAsEmpty(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	api.set(models.Reminder{ID: "r1"})
	eng, store := testEngine(api, newFakeChannel())

	if err := store.Set(kvstore.KeyDismissedReminders, "not a dismissal set"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	eng.Refresh(context.Background(), "poll")
	if got := reminderIDs(eng.Active()); len(got) != 1 || got[0] != "r1" {
		t.Errorf("active = %v, want [r1] despite corrupt set", got)
	}
}

func TestEventBurstCoalescesIntoOneRefresh(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	ch := newFakeChannel()
	eng, _ := testEngine(api, ch)

	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer eng.Stop()

	ch.push(models.EventTaskCreated)
	ch.push(models.EventTaskUpdated)
	ch.push(models.EventNewNotification)

	waitFor(t, time.Second, func() bool { return api.fetchCount() == 1 }, "debounced refresh never fired")

	// The settle window has elapsed; no further fetch may arrive.
	time.Sleep(60 * time.Millisecond)
	if got := api.fetchCount(); got != 1 {
		t.Errorf("fetches = %d, want 1 for a coalesced burst", got)
	}
}

func TestEventsWhileDisconnectedDoNotRefresh(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	ch := newFakeChannel()
	eng, _ := testEngine(api, ch)

	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer eng.Stop()

	ch.setConnected(false)
	ch.push(models.EventLeadCreated)

	time.Sleep(80 * time.Millisecond)
	if got := api.fetchCount(); got != 0 {
		t.Errorf("fetches = %d, want 0 while disconnected", got)
	}
}

func TestStopCancelsPendingDebounce(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	ch := newFakeChannel()
	eng, _ := testEngine(api, ch)

	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ch.push(models.EventLeadUpdated)
	eng.Stop()
	eng.Stop() // idempotent

	time.Sleep(80 * time.Millisecond)
	if got := api.fetchCount(); got != 0 {
		t.Errorf("fetches = %d, want 0 after stop canceled the debounce", got)
	}
}

func TestInitialFetchFiresAfterDelay(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	api.set(models.Reminder{ID: "r1"})
	store := kvstore.NewMemoryStore()
	eng := NewEngine(api, store, newFakeChannel(), Config{
		InitialDelay:  20 * time.Millisecond,
		PollInterval:  time.Hour,
		DebounceDelay: time.Hour,
	})

	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer eng.Stop()

	waitFor(t, time.Second, func() bool { return api.fetchCount() >= 1 }, "initial fetch never fired")
	waitFor(t, time.Second, func() bool { return len(eng.Active()) == 1 }, "active list never populated")
}

func TestPollFiresOnInterval(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	store := kvstore.NewMemoryStore()
	eng := NewEngine(api, store, newFakeChannel(), Config{
		InitialDelay:  time.Hour,
		PollInterval:  25 * time.Millisecond,
		DebounceDelay: time.Hour,
	})

	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer eng.Stop()

	waitFor(t, time.Second, func() bool { return api.fetchCount() >= 2 }, "interval poll never fired twice")
}
