// Pulse - Real-time Notification and Activity Pipeline Agent
// Copyright 2026 PropDesk Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/propdesk/pulse

/*
client.go - Ops Console REST API Client

The console's REST surface is an opaque JSON collaborator. This client
covers the five endpoints the pipeline consumes: the two count snapshots,
mark-section-read, today's reminders, and activity-log ingestion.
*/

// Package opsapi talks to the PropDesk ops console REST API.
package opsapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/propdesk/pulse/internal/models"
)

// Interface defines the console API operations consumed by the pipeline.
// Both Client and CircuitBreakerClient implement this interface.
type Interface interface {
	FetchTotalUnread(ctx context.Context) (models.TotalSnapshot, error)
	FetchCategoryCounts(ctx context.Context) (models.CategorySnapshot, error)
	MarkSectionRead(ctx context.Context, category models.Category) error
	FetchTodaysReminders(ctx context.Context) ([]models.Reminder, error)
	LogActivity(ctx context.Context, rec models.ActivityRecord) error
}

// Ensure Client implements Interface
var _ Interface = (*Client)(nil)

// Client provides access to the ops console REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Config holds REST client settings.
type Config struct {
	// BaseURL is the API root, e.g. "https://ops.propdesk.example/api".
	BaseURL string

	// Token is sent as a bearer token when non-empty.
	Token string

	// Timeout bounds each request.
	Timeout time.Duration

	// RequestsPerSecond rate-limits outgoing calls. 0 disables limiting.
	RequestsPerSecond float64
}

// NewClient creates a new ops console API client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)+1)
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
	}
}

// FetchTotalUnread retrieves the total-unread snapshot.
func (c *Client) FetchTotalUnread(ctx context.Context) (models.TotalSnapshot, error) {
	var snap models.TotalSnapshot
	if err := c.getJSON(ctx, "/notifications/unread-count", &snap); err != nil {
		return models.TotalSnapshot{}, fmt.Errorf("total unread snapshot: %w", err)
	}
	return snap, nil
}

// FetchCategoryCounts retrieves the per-category snapshot.
func (c *Client) FetchCategoryCounts(ctx context.Context) (models.CategorySnapshot, error) {
	var snap models.CategorySnapshot
	if err := c.getJSON(ctx, "/notifications/category-counts", &snap); err != nil {
		return models.CategorySnapshot{}, fmt.Errorf("category counts snapshot: %w", err)
	}
	return snap, nil
}

// MarkSectionRead marks all notifications of one category read server-side.
func (c *Client) MarkSectionRead(ctx context.Context, category models.Category) error {
	body := map[string]string{"category": string(category)}
	if err := c.postJSON(ctx, "/notifications/mark-section-read", body, nil); err != nil {
		return fmt.Errorf("mark section %s read: %w", category, err)
	}
	return nil
}

// FetchTodaysReminders retrieves the "reminders due today" snapshot.
func (c *Client) FetchTodaysReminders(ctx context.Context) ([]models.Reminder, error) {
	var reminders []models.Reminder
	if err := c.getJSON(ctx, "/reminders/today", &reminders); err != nil {
		return nil, fmt.Errorf("todays reminders: %w", err)
	}
	return reminders, nil
}

// LogActivity delivers one activity record. The ingestion endpoint accepts
// one record per call.
func (c *Client) LogActivity(ctx context.Context, rec models.ActivityRecord) error {
	if err := c.postJSON(ctx, "/activity/log", rec, nil); err != nil {
		return fmt.Errorf("log activity: %w", err)
	}
	return nil
}

// getJSON performs a GET and decodes the JSON response into out.
func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	resp, err := c.doRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

// postJSON performs a POST with a JSON body, optionally decoding the
// response into out when non-nil.
func (c *Client) postJSON(ctx context.Context, endpoint string, body, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", endpoint, err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		return statusError(resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", endpoint, err)
		}
	}
	return nil
}

// doRequest builds and executes one request, honoring the rate limiter.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", endpoint, err)
	}
	return resp, nil
}

// statusError drains the body into a bounded error message.
func statusError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 512))
	if err != nil {
		return fmt.Errorf("status %d (failed to read body)", resp.StatusCode)
	}
	return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
}
