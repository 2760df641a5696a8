// Pulse - Real-time Notification and Activity Pipeline Agent
// Copyright 2026 PropDesk Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/propdesk/pulse

package models

import "time"

// ActivityRecord is one unit of outbound user-activity telemetry.
// Ephemeral: buffered in memory and discarded after the first delivery
// attempt, successful or not.
type ActivityRecord struct {
	ID         string            `json:"id"`
	ActionType string            `json:"actionType"`
	Route      string            `json:"route"`
	Timestamp  time.Time         `json:"timestamp"`
	SessionID  string            `json:"sessionId"`
	Context    map[string]string `json:"context,omitempty"`
}
