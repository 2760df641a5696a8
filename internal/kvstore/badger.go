// Pulse - Real-time Notification and Activity Pipeline Agent
// Copyright 2026 PropDesk Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/propdesk/pulse

package kvstore

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/propdesk/pulse/internal/logging"
)

// BadgerStore implements Store on BadgerDB for durable client-local state
// that survives agent restarts.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a badger-backed store at path.
func OpenBadger(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	// Badger's own logger is noisy at INFO; route through zerolog at debug.
	opts = opts.WithLogger(badgerLogger{})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store at %s: %w", path, err)
	}
	return &BadgerStore{db: db}, nil
}

// Get implements Store.
func (s *BadgerStore) Get(key string, out interface{}) (bool, error) {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			raw = append([]byte(nil), val...)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		// Corrupt value reads as absent (fail-open).
		logging.Warn().Str("key", key).Err(err).Msg("corrupt stored value, treating as empty")
		return false, nil
	}
	return true, nil
}

// Set implements Store.
func (s *BadgerStore) Set(key string, val interface{}) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), raw)
	})
}

// Update implements Store. The read and write share one badger transaction,
// so concurrent updates to the same key serialize instead of clobbering.
func (s *BadgerStore) Update(key string, fn func(raw []byte) (interface{}, error)) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var cur []byte
		item, err := txn.Get([]byte(key))
		if err == nil {
			if verr := item.Value(func(val []byte) error {
				cur = append([]byte(nil), val...)
				return nil
			}); verr != nil {
				return verr
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		val, err := fn(cur)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", key, err)
		}
		return txn.Set([]byte(key), raw)
	})
}

// Delete implements Store.
func (s *BadgerStore) Delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// badgerLogger adapts badger's logger interface to zerolog.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	logging.Error().Msgf(format, args...)
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	logging.Warn().Msgf(format, args...)
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	logging.Debug().Msgf(format, args...)
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	logging.Debug().Msgf(format, args...)
}
