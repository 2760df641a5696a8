// Pulse - Real-time Notification and Activity Pipeline Agent
// Copyright 2026 PropDesk Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/propdesk/pulse

// Package metrics exposes Prometheus instrumentation for the pipeline:
// channel connectivity, event fan-out, toast lifecycle, reminder polling,
// and telemetry delivery.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Channel Metrics
	ChannelConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pulse_channel_connected",
			Help: "1 when the channel connection is established, 0 otherwise",
		},
	)

	ChannelReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_channel_reconnects_total",
			Help: "Total number of channel reconnection attempts",
		},
	)

	ChannelEventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_channel_events_received_total",
			Help: "Total number of inbound channel events by event name",
		},
		[]string{"event"},
	)

	ChannelEventsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_channel_events_emitted_total",
			Help: "Total number of outbound channel events by event name",
		},
		[]string{"event"},
	)

	// Count Aggregator Metrics
	CountsTotalUnread = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pulse_counts_total_unread",
			Help: "Current total unread counter",
		},
	)

	CountsSyncs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_counts_syncs_total",
			Help: "Total number of count snapshot syncs by result",
		},
		[]string{"result"}, // "success", "failure"
	)

	// Toast Metrics
	ToastsShown = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_toasts_shown_total",
			Help: "Total number of toasts enqueued",
		},
	)

	ToastsRemoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_toasts_removed_total",
			Help: "Total number of toasts removed by cause",
		},
		[]string{"cause"}, // "expired", "dismissed"
	)

	// Reminder Engine Metrics
	ReminderFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_reminder_fetches_total",
			Help: "Total number of reminder fetches by trigger",
		},
		[]string{"trigger"}, // "initial", "interval", "event"
	)

	RemindersSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_reminders_suppressed_total",
			Help: "Total number of reminders filtered out by the dismissal set",
		},
	)

	// Telemetry Batcher Metrics
	TelemetryQueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_telemetry_queued_total",
			Help: "Total number of activity records enqueued",
		},
	)

	TelemetryFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_telemetry_flushes_total",
			Help: "Total number of batcher flushes by trigger",
		},
		[]string{"trigger"}, // "cap", "interval", "destroy"
	)

	TelemetryDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_telemetry_delivered_total",
			Help: "Total number of per-record delivery attempts by result",
		},
		[]string{"result"}, // "success", "failure"
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pulse_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_circuit_breaker_requests_total",
			Help: "Total circuit breaker requests by outcome",
		},
		[]string{"name", "outcome"}, // "success", "failure", "rejected"
	)
)
