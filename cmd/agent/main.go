// Pulse - Real-time Notification and Activity Pipeline Agent
// Copyright 2026 PropDesk Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/propdesk/pulse

// Package main is the entry point for the Pulse agent.
//
// Pulse keeps a PropDesk ops-console session fed with realtime state. It
// holds one websocket channel to the console, identifies the session on
// every (re)connect, and fans the inbound event stream out to three
// independent consumers:
//
//   - the notification count aggregator (unread badge state)
//   - the toast display queue (transient pop-ups)
//   - the reminder poll and dedup engine (today's due reminders)
//
// A fourth component, the activity telemetry batcher, runs in the
// opposite direction: it buffers local user actions and ships them to the
// console's activity-log endpoint, at most once each.
//
// # Startup order
//
//  1. Configuration: koanf v2 layering defaults, a YAML file, and
//     PULSE_-prefixed environment variables
//  2. Logging: zerolog, configured from the logging section
//  3. Local store: BadgerDB at store.path, or in-memory when unset
//  4. Console REST client: rate-limited, optionally circuit-broken
//  5. Channel client and the three fan-out consumers
//  6. Supervisor tree: suture v4 with pipeline and diag layers
//
// # Signal handling
//
// SIGINT and SIGTERM cancel the root context. The supervisor tree then
// stops every service, the telemetry batcher performs its final flush,
// and unstopped services are reported before exit.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/propdesk/pulse/internal/bus"
	"github.com/propdesk/pulse/internal/channel"
	"github.com/propdesk/pulse/internal/config"
	"github.com/propdesk/pulse/internal/counts"
	"github.com/propdesk/pulse/internal/diag"
	"github.com/propdesk/pulse/internal/kvstore"
	"github.com/propdesk/pulse/internal/logging"
	"github.com/propdesk/pulse/internal/opsapi"
	"github.com/propdesk/pulse/internal/reminders"
	"github.com/propdesk/pulse/internal/supervisor"
	"github.com/propdesk/pulse/internal/telemetry"
	"github.com/propdesk/pulse/internal/toast"
)

// sessionEnvVar supplies the session identity for the identify handshake.
const sessionEnvVar = "PULSE_SESSION_ID"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	sessionID := os.Getenv(sessionEnvVar)
	if sessionID == "" {
		sessionID = uuid.New().String()
		logging.Warn().Str("session_id", sessionID).Msg("no session identity supplied, generated an ephemeral one")
	}

	logging.Info().
		Str("console", cfg.Server.BaseURL).
		Str("channel", cfg.Channel.URL).
		Msg("starting pulse agent")

	// Local key-value store for dismissal state.
	var store kvstore.Store
	if cfg.Store.Path != "" {
		badgerStore, err := kvstore.OpenBadger(cfg.Store.Path)
		if err != nil {
			logging.Fatal().Err(err).Str("path", cfg.Store.Path).Msg("failed to open local store")
		}
		store = badgerStore
	} else {
		logging.Warn().Msg("no store path configured, dismissals will not survive restarts")
		store = kvstore.NewMemoryStore()
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing local store")
		}
	}()

	// Console REST client, rate-limited and optionally circuit-broken.
	var api opsapi.Interface = opsapi.NewClient(opsapi.Config{
		BaseURL:           cfg.Server.BaseURL,
		Token:             cfg.Server.APIToken,
		Timeout:           cfg.Server.Timeout,
		RequestsPerSecond: cfg.Server.RequestsPerSecond,
	})
	if cfg.Server.CircuitBreaker {
		api = opsapi.NewCircuitBreakerClient(api)
		logging.Info().Msg("circuit breaker enabled for console API")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Realtime channel and its fan-out consumers.
	client := channel.NewClient(channel.Config{
		URL:              cfg.Channel.URL,
		HandshakeTimeout: cfg.Channel.HandshakeTimeout,
		PingInterval:     cfg.Channel.PingInterval,
		ReconnectMin:     cfg.Channel.ReconnectMin,
		ReconnectMax:     cfg.Channel.ReconnectMax,
	}, sessionID)

	aggregator := counts.NewAggregator(api, client)

	toasts := toast.NewQueue(toast.Config{
		VisibleFor: cfg.Toasts.VisibleFor,
		ExitFor:    cfg.Toasts.ExitFor,
	})
	toasts.Attach(client)
	defer toasts.Stop()

	reminderEngine := reminders.NewEngine(api, store, client, reminders.Config{
		InitialDelay:  cfg.Reminders.InitialDelay,
		PollInterval:  cfg.Reminders.PollInterval,
		DebounceDelay: cfg.Reminders.DebounceDelay,
	})

	batcher := telemetry.NewBatcher(api.LogActivity, sessionID, telemetry.Config{
		BatchSize:     cfg.Telemetry.BatchSize,
		FlushInterval: cfg.Telemetry.FlushInterval,
	})

	// UI-local signals: per-notification mark-read decrements the badge,
	// popup toggles route to the reminder engine.
	signals := bus.New()
	defer func() {
		if err := signals.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing signal bus")
		}
	}()
	if err := signals.SubscribeNotificationRead(ctx, aggregator.Decrement); err != nil {
		logging.Fatal().Err(err).Msg("failed to subscribe to mark-read signals")
	}
	if err := signals.SubscribePopupVisibility(ctx, reminderEngine.SetPopupVisible); err != nil {
		logging.Fatal().Err(err).Msg("failed to subscribe to popup signals")
	}

	// Supervisor tree.
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddPipelineService(supervisor.NewChannelService(client))
	tree.AddPipelineService(supervisor.NewCountsService(aggregator))
	tree.AddPipelineService(supervisor.NewReminderService(reminderEngine))
	tree.AddPipelineService(supervisor.NewTelemetryService(batcher))

	if cfg.Diag.Enabled {
		diagServer := diag.NewServer(cfg.Diag, func() map[string]interface{} {
			snap := aggregator.Snapshot()
			return map[string]interface{}{
				"channelConnected": client.Connected(),
				"totalUnread":      snap.Total,
				"activeReminders":  len(reminderEngine.Active()),
				"pendingActivity":  batcher.Pending(),
			}
		})
		tree.AddDiagService(supervisor.NewDiagService(diagServer))
	}

	// Shutdown on SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("service failed to stop within timeout")
	}

	logging.Info().Msg("pulse agent stopped")
}
