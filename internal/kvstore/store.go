// Pulse - Real-time Notification and Activity Pipeline Agent
// Copyright 2026 PropDesk Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/propdesk/pulse

// Package kvstore provides the small JSON key-value persistence layer used
// for client-local state: the reminder dismissal set and the install-prompt
// timestamp.
//
// The store is deliberately fail-open: a missing or corrupt value reads as
// absent, never as an error, so a damaged local cache cannot block reminder
// delivery.
package kvstore

import (
	"sync"

	"github.com/goccy/go-json"
)

// Well-known keys.
const (
	KeyDismissedReminders = "reminders:dismissed"
	KeyInstallPromptAt    = "install_prompt:dismissed_at"
)

// Store is a JSON key-value store with atomic read-modify-write.
type Store interface {
	// Get unmarshals the value at key into out. Returns false when the key
	// is absent or the stored value is corrupt (fail-open).
	Get(key string, out interface{}) (bool, error)

	// Set marshals val and stores it at key.
	Set(key string, val interface{}) error

	// Update atomically applies fn to the current raw value at key
	// (nil when absent) and stores the returned value. The read and write
	// happen under one transaction so concurrent updates cannot lose data.
	Update(key string, fn func(raw []byte) (interface{}, error)) error

	// Delete removes key. Deleting an absent key is a no-op.
	Delete(key string) error

	// Close releases underlying resources.
	Close() error
}

// MemoryStore is an in-process Store used in tests and when no store path
// is configured.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Get implements Store.
func (s *MemoryStore) Get(key string, out interface{}) (bool, error) {
	s.mu.Lock()
	raw, ok := s.data[key]
	s.mu.Unlock()

	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		// Corrupt value reads as absent.
		return false, nil
	}
	return true, nil
}

// Set implements Store.
func (s *MemoryStore) Set(key string, val interface{}) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data[key] = raw
	s.mu.Unlock()
	return nil
}

// Update implements Store.
func (s *MemoryStore) Update(key string, fn func(raw []byte) (interface{}, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	val, err := fn(s.data[key])
	if err != nil {
		return err
	}
	raw, err := json.Marshal(val)
	if err != nil {
		return err
	}
	s.data[key] = raw
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}
