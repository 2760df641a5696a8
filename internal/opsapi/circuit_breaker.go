// Pulse - Real-time Notification and Activity Pipeline Agent
// Copyright 2026 PropDesk Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/propdesk/pulse

package opsapi

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/propdesk/pulse/internal/logging"
	"github.com/propdesk/pulse/internal/metrics"
	"github.com/propdesk/pulse/internal/models"
)

// Ensure CircuitBreakerClient implements Interface
var _ Interface = (*CircuitBreakerClient)(nil)

// CircuitBreakerClient wraps Client with a circuit breaker so a console
// outage sheds load quickly instead of stacking timed-out requests behind
// every poll and flush.
type CircuitBreakerClient struct {
	client Interface
	cb     *gobreaker.CircuitBreaker[interface{}]
	name   string
}

// NewCircuitBreakerClient wraps client with circuit breaker protection.
// Configuration:
//   - Max 3 concurrent requests in half-open state
//   - 1 minute measurement window
//   - 30 second timeout before attempting recovery
//   - Opens after 60% failure rate with minimum 10 requests
func NewCircuitBreakerClient(client Interface) *CircuitBreakerClient {
	cbName := "opsapi"

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("from", stateToString(from)).Str("to", stateToString(to)).Msg("ops API circuit state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &CircuitBreakerClient{client: client, cb: cb, name: cbName}
}

// execute wraps one API call with circuit breaker protection.
func (c *CircuitBreakerClient) execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := c.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(c.name, "rejected").Inc()
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(c.name, "failure").Inc()
		}
		return nil, err
	}
	metrics.CircuitBreakerRequests.WithLabelValues(c.name, "success").Inc()
	return result, nil
}

// FetchTotalUnread implements Interface.
func (c *CircuitBreakerClient) FetchTotalUnread(ctx context.Context) (models.TotalSnapshot, error) {
	result, err := c.execute(func() (interface{}, error) {
		return c.client.FetchTotalUnread(ctx)
	})
	if err != nil {
		return models.TotalSnapshot{}, err
	}
	return result.(models.TotalSnapshot), nil
}

// FetchCategoryCounts implements Interface.
func (c *CircuitBreakerClient) FetchCategoryCounts(ctx context.Context) (models.CategorySnapshot, error) {
	result, err := c.execute(func() (interface{}, error) {
		return c.client.FetchCategoryCounts(ctx)
	})
	if err != nil {
		return models.CategorySnapshot{}, err
	}
	return result.(models.CategorySnapshot), nil
}

// MarkSectionRead implements Interface.
func (c *CircuitBreakerClient) MarkSectionRead(ctx context.Context, category models.Category) error {
	_, err := c.execute(func() (interface{}, error) {
		return nil, c.client.MarkSectionRead(ctx, category)
	})
	return err
}

// FetchTodaysReminders implements Interface.
func (c *CircuitBreakerClient) FetchTodaysReminders(ctx context.Context) ([]models.Reminder, error) {
	result, err := c.execute(func() (interface{}, error) {
		return c.client.FetchTodaysReminders(ctx)
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	return result.([]models.Reminder), nil
}

// LogActivity implements Interface.
func (c *CircuitBreakerClient) LogActivity(ctx context.Context, rec models.ActivityRecord) error {
	_, err := c.execute(func() (interface{}, error) {
		return nil, c.client.LogActivity(ctx, rec)
	})
	return err
}

// stateToString converts a gobreaker state to a readable label.
func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// stateToFloat converts a gobreaker state to its metric value.
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
