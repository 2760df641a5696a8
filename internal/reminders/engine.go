// Pulse - Real-time Notification and Activity Pipeline Agent
// Copyright 2026 PropDesk Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/propdesk/pulse

// Package reminders polls the console for today's due reminders, filters
// out entries the user already dismissed today, and keeps the reminder
// popup state. Dismissals persist in the local key-value store under a
// day-scoped set that resets at midnight.
package reminders

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/propdesk/pulse/internal/channel"
	"github.com/propdesk/pulse/internal/kvstore"
	"github.com/propdesk/pulse/internal/logging"
	"github.com/propdesk/pulse/internal/metrics"
	"github.com/propdesk/pulse/internal/models"
	"github.com/propdesk/pulse/internal/opsapi"
)

// dismissalDateLayout is the day-resolution stamp stored with the set.
const dismissalDateLayout = "Mon Jan 02 2006"

// Config controls the fetch triggers.
type Config struct {
	// InitialDelay postpones the first fetch after Start so it does not
	// contend with session startup.
	InitialDelay time.Duration
	// PollInterval is the fixed re-fetch cadence.
	PollInterval time.Duration
	// DebounceDelay is the settle window for event-triggered refreshes.
	DebounceDelay time.Duration
}

// DefaultConfig returns the production trigger cadence.
func DefaultConfig() Config {
	return Config{
		InitialDelay:  3 * time.Second,
		PollInterval:  2 * time.Minute,
		DebounceDelay: time.Second,
	}
}

// Channel is the subset of the realtime client the engine consumes.
type Channel interface {
	Connected() bool
	Subscribe(event string, fn func(json.RawMessage)) *channel.Subscription
}

// Engine fetches, filters, and tracks today's reminders.
type Engine struct {
	cfg   Config
	api   opsapi.Interface
	store kvstore.Store
	ch    Channel
	now   func() time.Time

	mu           sync.Mutex
	active       []models.Reminder
	popupVisible bool
	subs         []*channel.Subscription
	onChange     func([]models.Reminder, bool)

	debounce *Debouncer
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewEngine creates an Engine. now may be nil, in which case the wall
// clock is used.
func NewEngine(api opsapi.Interface, store kvstore.Store, ch Channel, cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = def.DebounceDelay
	}
	return &Engine{
		cfg:   cfg,
		api:   api,
		store: store,
		ch:    ch,
		now:   time.Now,
	}
}

// SetClock replaces the engine's time source, for tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

// SetOnChange registers a callback invoked with the active list and popup
// visibility after every change. Intended for the UI; may be nil.
func (e *Engine) SetOnChange(fn func([]models.Reminder, bool)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onChange = fn
}

// Start schedules the initial fetch, the fixed-interval poll, and the
// debounced event-triggered refresh.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = true
	e.stopChan = make(chan struct{})
	e.debounce = NewDebouncer(e.cfg.DebounceDelay, func() {
		e.Refresh(context.Background(), "event")
	})
	for _, event := range models.ReminderRefreshEvents() {
		sub := e.ch.Subscribe(event, func(json.RawMessage) {
			if e.ch.Connected() {
				e.debounce.Trigger()
			}
		})
		e.subs = append(e.subs, sub)
	}
	e.mu.Unlock()

	e.wg.Add(1)
	go e.run(ctx)
	return nil
}

// Stop cancels the poll and debounce timers and drops the event
// subscriptions. Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stopChan)
	e.debounce.Stop()
	subs := e.subs
	e.subs = nil
	e.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	e.wg.Wait()
}

func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()

	initial := time.NewTimer(e.cfg.InitialDelay)
	defer initial.Stop()
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-initial.C:
			e.Refresh(ctx, "initial")
		case <-ticker.C:
			e.Refresh(ctx, "poll")
		case <-e.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Refresh fetches today's reminders and replaces the active list with the
// entries not yet dismissed today. A fetch failure leaves the previous
// list in place until the next trigger. A non-empty filtered result opens
// the popup.
func (e *Engine) Refresh(ctx context.Context, trigger string) {
	metrics.ReminderFetches.WithLabelValues(trigger).Inc()

	fetched, err := e.api.FetchTodaysReminders(ctx)
	if err != nil {
		logging.Warn().Err(err).Str("trigger", trigger).Msg("reminder fetch failed, keeping previous list")
		return
	}

	dismissed := e.dismissedToday()
	filtered := make([]models.Reminder, 0, len(fetched))
	suppressed := 0
	for _, r := range fetched {
		if dismissed.Contains(r.ID) {
			suppressed++
			continue
		}
		filtered = append(filtered, r)
	}
	if suppressed > 0 {
		metrics.RemindersSuppressed.Add(float64(suppressed))
	}

	e.mu.Lock()
	e.active = filtered
	if len(filtered) > 0 {
		e.popupVisible = true
	}
	e.mu.Unlock()

	logging.Debug().Str("trigger", trigger).Int("active", len(filtered)).Int("suppressed", suppressed).Msg("reminders refreshed")
	e.publish()
}

// DismissReminder persists id into today's dismissal set and drops it from
// the active list. The persisted set is re-read inside the update, so a
// concurrent dismissal is never overwritten with a stale snapshot.
func (e *Engine) DismissReminder(id string) error {
	today := e.today()
	err := e.store.Update(kvstore.KeyDismissedReminders, func(raw []byte) (interface{}, error) {
		set := decodeDismissalSet(raw, today)
		if !set.Contains(id) {
			set.IDs = append(set.IDs, id)
		}
		return set, nil
	})
	if err != nil {
		return err
	}

	e.mu.Lock()
	for i := range e.active {
		if e.active[i].ID == id {
			e.active = append(e.active[:i:i], e.active[i+1:]...)
			break
		}
	}
	e.mu.Unlock()

	e.publish()
	return nil
}

// DismissAll persists every currently active reminder id, clears the
// active list, and hides the popup.
func (e *Engine) DismissAll() error {
	e.mu.Lock()
	ids := make([]string, len(e.active))
	for i, r := range e.active {
		ids[i] = r.ID
	}
	e.mu.Unlock()

	today := e.today()
	err := e.store.Update(kvstore.KeyDismissedReminders, func(raw []byte) (interface{}, error) {
		set := decodeDismissalSet(raw, today)
		for _, id := range ids {
			if !set.Contains(id) {
				set.IDs = append(set.IDs, id)
			}
		}
		return set, nil
	})
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.active = nil
	e.popupVisible = false
	e.mu.Unlock()

	e.publish()
	return nil
}

// Active returns a copy of the currently visible reminders.
func (e *Engine) Active() []models.Reminder {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.Reminder, len(e.active))
	copy(out, e.active)
	return out
}

// PopupVisible reports whether the reminder popup should be shown.
func (e *Engine) PopupVisible() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.popupVisible
}

// SetPopupVisible opens or closes the popup without touching the active
// list, so closing it leaves the reminders available for a badge to
// reopen.
func (e *Engine) SetPopupVisible(visible bool) {
	e.mu.Lock()
	e.popupVisible = visible
	e.mu.Unlock()
	e.publish()
}

// dismissedToday reads the persisted dismissal set, treating a missing or
// corrupt value, or one stamped with a different day, as empty.
func (e *Engine) dismissedToday() models.DismissalSet {
	today := e.today()
	var set models.DismissalSet
	found, err := e.store.Get(kvstore.KeyDismissedReminders, &set)
	if err != nil {
		logging.Warn().Err(err).Msg("dismissal set read failed, treating as empty")
		return models.DismissalSet{Date: today}
	}
	if !found || set.Date != today {
		return models.DismissalSet{Date: today}
	}
	return set
}

func (e *Engine) today() string {
	e.mu.Lock()
	now := e.now
	e.mu.Unlock()
	return now().Format(dismissalDateLayout)
}

func (e *Engine) publish() {
	e.mu.Lock()
	fn := e.onChange
	var (
		snap    []models.Reminder
		visible bool
	)
	if fn != nil {
		snap = make([]models.Reminder, len(e.active))
		copy(snap, e.active)
		visible = e.popupVisible
	}
	e.mu.Unlock()

	if fn != nil {
		fn(snap, visible)
	}
}

// decodeDismissalSet parses a stored set, starting fresh when the value is
// absent, malformed, or stamped with a different day.
func decodeDismissalSet(raw []byte, today string) models.DismissalSet {
	if len(raw) == 0 {
		return models.DismissalSet{Date: today}
	}
	var set models.DismissalSet
	if err := json.Unmarshal(raw, &set); err != nil || set.Date != today {
		return models.DismissalSet{Date: today}
	}
	return set
}
