// Pulse - Real-time Notification and Activity Pipeline Agent
// Copyright 2026 PropDesk Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/propdesk/pulse

package models

// Category identifies one of the six notification sections of the console.
type Category string

// Notification categories.
const (
	CategoryLeads         Category = "leads"
	CategoryTasks         Category = "tasks"
	CategoryTeamChat      Category = "teamChat"
	CategoryCallers       Category = "callers"
	CategoryCalendar      Category = "calendar"
	CategoryAnnouncements Category = "announcements"
)

// Categories returns all known categories in display order.
func Categories() []Category {
	return []Category{
		CategoryLeads,
		CategoryTasks,
		CategoryTeamChat,
		CategoryCallers,
		CategoryCalendar,
		CategoryAnnouncements,
	}
}

// CountState is a point-in-time view of unread counters.
//
// Total is not required to equal the sum of the per-category counts: some
// event types increment total only.
type CountState struct {
	Total       uint64              `json:"total"`
	PerCategory map[Category]uint64 `json:"perCategory"`
}

// TotalSnapshot is the server's total-unread snapshot response.
type TotalSnapshot struct {
	Total uint64 `json:"total"`
}

// CategorySnapshot is the server's per-category snapshot response.
type CategorySnapshot struct {
	Leads         uint64 `json:"leads"`
	Tasks         uint64 `json:"tasks"`
	TeamChat      uint64 `json:"teamChat"`
	Callers       uint64 `json:"callers"`
	Calendar      uint64 `json:"calendar"`
	Announcements uint64 `json:"announcements"`
}

// ToMap converts the snapshot to a per-category map.
func (s CategorySnapshot) ToMap() map[Category]uint64 {
	return map[Category]uint64{
		CategoryLeads:         s.Leads,
		CategoryTasks:         s.Tasks,
		CategoryTeamChat:      s.TeamChat,
		CategoryCallers:       s.Callers,
		CategoryCalendar:      s.Calendar,
		CategoryAnnouncements: s.Announcements,
	}
}
