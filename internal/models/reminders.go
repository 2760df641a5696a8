// Pulse - Real-time Notification and Activity Pipeline Agent
// Copyright 2026 PropDesk Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/propdesk/pulse

package models

// ReminderCategory identifies the domain object a reminder belongs to.
type ReminderCategory string

// Reminder categories.
const (
	ReminderCalendar ReminderCategory = "calendar"
	ReminderTask     ReminderCategory = "task"
	ReminderLead     ReminderCategory = "lead"
	ReminderCaller   ReminderCategory = "caller"
)

// ReminderPriority orders reminders within the popup.
type ReminderPriority string

// Reminder priorities.
const (
	PriorityHigh   ReminderPriority = "high"
	PriorityMedium ReminderPriority = "medium"
	PriorityLow    ReminderPriority = "low"
)

// Reminder is one entry of the server's "today's reminders" snapshot.
type Reminder struct {
	ID        string           `json:"_id"`
	Category  ReminderCategory `json:"category"`
	Priority  ReminderPriority `json:"priority"`
	IsOverdue bool             `json:"isOverdue"`
	Title     string           `json:"title"`
	DueAt     string           `json:"dueAt,omitempty"`
	Link      string           `json:"link,omitempty"`
}

// DismissalSet is the day-scoped record of reminder ids the user has already
// acknowledged. It is only valid for the calendar day it was created on; a
// read on any other day treats it as empty.
type DismissalSet struct {
	// Date is a day-resolution string, e.g. "Mon Sep 01 2026".
	Date string   `json:"date"`
	IDs  []string `json:"ids"`
}

// Contains reports whether id is in the set.
func (d DismissalSet) Contains(id string) bool {
	for _, v := range d.IDs {
		if v == id {
			return true
		}
	}
	return false
}
