// Pulse - Real-time Notification and Activity Pipeline Agent
// Copyright 2026 PropDesk Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/propdesk/pulse

// Service wrappers adapting the pipeline components to the suture.Service
// interface. Each wrapper starts its component, blocks until the context
// is canceled, and tears the component down before returning.

package supervisor

import (
	"context"

	"github.com/propdesk/pulse/internal/channel"
	"github.com/propdesk/pulse/internal/counts"
	"github.com/propdesk/pulse/internal/diag"
	"github.com/propdesk/pulse/internal/logging"
	"github.com/propdesk/pulse/internal/reminders"
	"github.com/propdesk/pulse/internal/telemetry"
)

// ChannelService supervises the realtime channel client.
type ChannelService struct {
	client *channel.Client
}

// NewChannelService wraps client as a suture service.
func NewChannelService(client *channel.Client) *ChannelService {
	return &ChannelService{client: client}
}

// Serve implements suture.Service.
func (s *ChannelService) Serve(ctx context.Context) error {
	logging.Info().Msg("starting realtime channel service")
	if err := s.client.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.client.Stop()
	return ctx.Err()
}

func (s *ChannelService) String() string { return "channel" }

// CountsService supervises the notification count aggregator.
type CountsService struct {
	agg *counts.Aggregator
}

// NewCountsService wraps agg as a suture service.
func NewCountsService(agg *counts.Aggregator) *CountsService {
	return &CountsService{agg: agg}
}

// Serve implements suture.Service.
func (s *CountsService) Serve(ctx context.Context) error {
	logging.Info().Msg("starting notification count aggregator")
	s.agg.Start(ctx)
	<-ctx.Done()
	return ctx.Err()
}

func (s *CountsService) String() string { return "counts" }

// ReminderService supervises the reminder poll engine.
type ReminderService struct {
	engine *reminders.Engine
}

// NewReminderService wraps engine as a suture service.
func NewReminderService(engine *reminders.Engine) *ReminderService {
	return &ReminderService{engine: engine}
}

// Serve implements suture.Service.
func (s *ReminderService) Serve(ctx context.Context) error {
	logging.Info().Msg("starting reminder engine service")
	if err := s.engine.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.engine.Stop()
	return ctx.Err()
}

func (s *ReminderService) String() string { return "reminders" }

// TelemetryService supervises the activity batcher. The batcher runs its
// own interval loop from construction; the wrapper only anchors its
// lifetime to the tree and performs the final flush on shutdown.
type TelemetryService struct {
	batcher *telemetry.Batcher
}

// NewTelemetryService wraps batcher as a suture service.
func NewTelemetryService(batcher *telemetry.Batcher) *TelemetryService {
	return &TelemetryService{batcher: batcher}
}

// Serve implements suture.Service.
func (s *TelemetryService) Serve(ctx context.Context) error {
	logging.Info().Msg("starting activity telemetry service")
	<-ctx.Done()
	s.batcher.Destroy()
	return ctx.Err()
}

func (s *TelemetryService) String() string { return "telemetry" }

// DiagService supervises the diagnostics HTTP server.
type DiagService struct {
	server *diag.Server
}

// NewDiagService wraps server as a suture service.
func NewDiagService(server *diag.Server) *DiagService {
	return &DiagService{server: server}
}

// Serve implements suture.Service.
func (s *DiagService) Serve(ctx context.Context) error {
	if err := s.server.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultTreeConfig().ShutdownTimeout)
	defer cancel()
	if err := s.server.Stop(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("diagnostics server shutdown incomplete")
	}
	return ctx.Err()
}

func (s *DiagService) String() string { return "diag" }
