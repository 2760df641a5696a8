// Pulse - Real-time Notification and Activity Pipeline Agent
// Copyright 2026 PropDesk Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/propdesk/pulse

package kvstore

import (
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Date string   `json:"date"`
	IDs  []string `json:"ids"`
}

// stores returns one of each Store implementation for shared behavior tests.
func stores(t *testing.T) map[string]Store {
	t.Helper()

	bs, err := OpenBadger(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = bs.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"badger": bs,
	}
}

func TestGetSetRoundTrip(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			var out payload
			found, err := s.Get("k", &out)
			require.NoError(t, err)
			require.False(t, found, "absent key should read as not found")

			require.NoError(t, s.Set("k", payload{Date: "Mon Sep 01 2026", IDs: []string{"r1"}}))

			found, err = s.Get("k", &out)
			require.NoError(t, err)
			require.True(t, found)
			require.Equal(t, "Mon Sep 01 2026", out.Date)
			require.Equal(t, []string{"r1"}, out.IDs)
		})
	}
}

func TestDelete(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Set("k", payload{Date: "d"}))
			require.NoError(t, s.Delete("k"))

			var out payload
			found, err := s.Get("k", &out)
			require.NoError(t, err)
			require.False(t, found)

			// Deleting an absent key is a no-op.
			require.NoError(t, s.Delete("k"))
		})
	}
}

func TestUpdateReadModifyWrite(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			// First update sees a nil raw value.
			err := s.Update("k", func(raw []byte) (interface{}, error) {
				require.Nil(t, raw)
				return payload{Date: "d", IDs: []string{"a"}}, nil
			})
			require.NoError(t, err)

			// Second update sees the stored value.
			err = s.Update("k", func(raw []byte) (interface{}, error) {
				require.NotNil(t, raw)
				return payload{Date: "d", IDs: []string{"a", "b"}}, nil
			})
			require.NoError(t, err)

			var out payload
			found, err := s.Get("k", &out)
			require.NoError(t, err)
			require.True(t, found)
			require.Equal(t, []string{"a", "b"}, out.IDs)
		})
	}
}

func TestConcurrentUpdatesDontLoseWrites(t *testing.T) {
	s := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Update("counter", func(raw []byte) (interface{}, error) {
				var cur payload
				if raw != nil {
					_ = json.Unmarshal(raw, &cur)
				}
				cur.IDs = append(cur.IDs, "x")
				return cur, nil
			})
		}()
	}
	wg.Wait()

	var out payload
	found, err := s.Get("counter", &out)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, out.IDs, 50)
}

func TestCorruptValueReadsAsAbsent(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		s := NewMemoryStore()
		s.mu.Lock()
		s.data["k"] = []byte("{not json")
		s.mu.Unlock()

		var out payload
		found, err := s.Get("k", &out)
		require.NoError(t, err)
		require.False(t, found, "corrupt value should read as absent")
	})

	t.Run("badger", func(t *testing.T) {
		s, err := OpenBadger(t.TempDir())
		require.NoError(t, err)
		defer func() { _ = s.Close() }()

		// Plant a non-JSON value directly.
		err = s.db.Update(func(txn *badger.Txn) error {
			return txn.Set([]byte("k"), []byte("{not json"))
		})
		require.NoError(t, err)

		var out payload
		found, err := s.Get("k", &out)
		require.NoError(t, err)
		require.False(t, found, "corrupt value should read as absent")
	})
}
