// Pulse - Real-time Notification and Activity Pipeline Agent
// Copyright 2026 PropDesk Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/propdesk/pulse

// Package models defines the shared domain types of the Pulse pipeline:
// channel events, unread counts, reminders, toasts, and activity records.
package models

import "time"

// Channel event names pushed by the ops console server.
const (
	EventNewNotification  = "new-notification"
	EventTaskAssigned     = "taskAssigned"
	EventNewLead          = "new-lead"
	EventNotification     = "notification"
	EventAnnouncement     = "ANNOUNCEMENT"
	EventNewAnnouncement  = "new-announcement"
	EventChatMessage      = "chat-message"
	EventPrivateMessage   = "private-message"
	EventLeadAssigned     = "lead-assigned"
	EventTaskStatusUpdate = "taskStatusUpdated"
	EventUserAdded        = "user-added"
)

// Data-refresh event names. These don't carry notification content; they
// signal that a domain object changed and reminder state may be stale.
const (
	EventTaskCreated        = "task-created"
	EventTaskUpdated        = "task-updated"
	EventLeadCreated        = "lead-created"
	EventLeadUpdated        = "lead-updated"
	EventLeadRemarksUpdated = "lead-remarks-updated"
	EventAttendanceUpdated  = "attendance-updated"
	EventTeamAttendance     = "team-attendance-updated"
	EventInventoryCreated   = "inventory-created"
	EventUnitUpdated        = "unit-updated"
)

// EventIdentify is the outbound handshake event binding the channel to a
// session identity for targeted server push.
const EventIdentify = "identify"

// NotificationEvent is an inbound server-pushed message. Transient: it is
// consumed on arrival by each fan-out subscriber and never persisted.
type NotificationEvent struct {
	Type      string    `json:"type"`
	Title     string    `json:"title,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	CreatedBy string    `json:"createdBy,omitempty"`
	Link      string    `json:"link,omitempty"`
}

// ReminderRefreshEvents lists the channel events that trigger a debounced
// reminder refresh.
func ReminderRefreshEvents() []string {
	return []string{
		EventTaskCreated,
		EventTaskUpdated,
		EventLeadCreated,
		EventLeadUpdated,
		EventLeadRemarksUpdated,
		EventNewNotification,
	}
}
