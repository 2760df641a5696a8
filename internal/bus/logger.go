// Pulse - Real-time Notification and Activity Pipeline Agent
// Copyright 2026 PropDesk Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/propdesk/pulse

package bus

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"

	"github.com/propdesk/pulse/internal/logging"
)

// watermillLogger adapts watermill's LoggerAdapter to zerolog.
type watermillLogger struct {
	fields watermill.LogFields
}

func newWatermillLogger() watermill.LoggerAdapter {
	return &watermillLogger{}
}

// Error implements watermill.LoggerAdapter.
func (l *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.event(logging.Err(err), fields).Msg(msg)
}

// Info implements watermill.LoggerAdapter.
func (l *watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.event(logging.Debug(), fields).Msg(msg)
}

// Debug implements watermill.LoggerAdapter.
func (l *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.event(logging.Debug(), fields).Msg(msg)
}

// Trace implements watermill.LoggerAdapter.
func (l *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.event(logging.Trace(), fields).Msg(msg)
}

// With implements watermill.LoggerAdapter.
func (l *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillLogger{fields: l.fields.Add(fields)}
}

func (l *watermillLogger) event(e *zerolog.Event, fields watermill.LogFields) *zerolog.Event {
	for k, v := range l.fields {
		e = e.Interface(k, v)
	}
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	return e
}
