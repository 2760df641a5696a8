// Pulse - Real-time Notification and Activity Pipeline Agent
// Copyright 2026 PropDesk Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/propdesk/pulse

package diag

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/propdesk/pulse/internal/config"
)

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	s := NewServer(config.DiagConfig{}, nil)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want ok", body["status"])
	}
}

func TestStatusEndpointMergesSnapshot(t *testing.T) {
	t.Parallel()

	s := NewServer(config.DiagConfig{}, func() map[string]interface{} {
		return map[string]interface{}{
			"channelConnected": true,
			"totalUnread":      float64(7),
		}
	})
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/statusz", nil))

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["channelConnected"] != true {
		t.Errorf("channelConnected = %v, want true", body["channelConnected"])
	}
	if body["totalUnread"] != float64(7) {
		t.Errorf("totalUnread = %v, want 7", body["totalUnread"])
	}
}

func TestMetricsEndpointServesPrometheusText(t *testing.T) {
	t.Parallel()

	s := NewServer(config.DiagConfig{}, nil)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("metrics output missing standard runtime collectors")
	}
}
