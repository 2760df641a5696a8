// Pulse - Real-time Notification and Activity Pipeline Agent
// Copyright 2026 PropDesk Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/propdesk/pulse

package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestInitAndLevels(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	defer Init(DefaultConfig())

	Debug().Str("k", "v").Msg("debug message")
	Info().Msg("info message")

	out := buf.String()
	if !strings.Contains(out, "debug message") {
		t.Errorf("expected debug message in output, got %q", out)
	}
	if !strings.Contains(out, `"k":"v"`) {
		t.Errorf("expected structured field in output, got %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]zerolog.Level{
		"trace":    zerolog.TraceLevel,
		"debug":    zerolog.DebugLevel,
		"info":     zerolog.InfoLevel,
		"warn":     zerolog.WarnLevel,
		"warning":  zerolog.WarnLevel,
		"error":    zerolog.ErrorLevel,
		"disabled": zerolog.Disabled,
		"bogus":    zerolog.InfoLevel,
		"":         zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "warn", Format: "json", Output: &buf})
	defer Init(DefaultConfig())

	Info().Msg("should be filtered")
	Warn().Msg("should appear")

	out := buf.String()
	if strings.Contains(out, "should be filtered") {
		t.Errorf("info message leaked through warn level: %q", out)
	}
	if !strings.Contains(out, "should appear") {
		t.Errorf("warn message missing: %q", out)
	}
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewTestLogger(&buf))
	defer Init(DefaultConfig())

	slogger := slog.New(NewSlogHandler())
	slogger.Info("hello", "user", "u1", "count", int64(3))

	out := buf.String()
	if !strings.Contains(out, "hello") {
		t.Errorf("expected message in output, got %q", out)
	}
	if !strings.Contains(out, `"user":"u1"`) {
		t.Errorf("expected user attr in output, got %q", out)
	}
	if !strings.Contains(out, `"count":3`) {
		t.Errorf("expected count attr in output, got %q", out)
	}
}

func TestSlogAdapterGroups(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewTestLogger(&buf))
	defer Init(DefaultConfig())

	slogger := slog.New(NewSlogHandler()).WithGroup("svc").With("name", "channel")
	slogger.Warn("restart")

	out := buf.String()
	if !strings.Contains(out, `"svc.name":"channel"`) {
		t.Errorf("expected grouped attr in output, got %q", out)
	}
}
