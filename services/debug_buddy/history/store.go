// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history persists finished debugging sessions.
//
// # Description
//
// Every terminated session is written to an embedded BadgerDB store as
// one JSON record keyed "session:<nanos>:<id>". The zero-padded
// nanosecond timestamp makes keys sort chronologically, so listing
// recent sessions is a single reverse scan and needs no secondary
// index. Records carry the full final context, which keeps a past
// session inspectable long after the terminal scrollback is gone.
//
// # Thread Safety
//
// Store is safe for concurrent use. BadgerDB serializes writes
// internally.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/AleutianAI/DebugBuddy/pkg/logging"
	agentcontext "github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/context"
)

// SessionTypeAgentic marks records written by the debugging loop.
const SessionTypeAgentic = "agentic"

// DefaultListLimit bounds List when the caller passes no limit.
const DefaultListLimit = 20

// keyPrefix namespaces session records inside the store.
const keyPrefix = "session:"

var (
	// ErrNotFound is returned when no record matches a key or reference.
	ErrNotFound = errors.New("session record not found")

	// ErrStoreClosed is returned for operations on a closed store.
	ErrStoreClosed = errors.New("history store is closed")
)

// Record is the session log written at termination.
type Record struct {
	// SessionType distinguishes record kinds. The debugging loop
	// writes "agentic".
	SessionType string `json:"session_type"`

	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`

	// InitialCommand is the failing command the session started from.
	InitialCommand string `json:"initial_command"`

	// UserContext is the free-text goal supplied alongside the command.
	UserContext string `json:"user_context,omitempty"`

	FinalState   string `json:"final_state"`
	FinalMessage string `json:"final_message,omitempty"`
	StepsTaken   int    `json:"steps_taken"`
	DurationMs   int64  `json:"duration_ms,omitempty"`

	// FinalContext is the working memory at termination: session
	// history, error progression, solved issues, and the knowledge
	// base.
	FinalContext *agentcontext.AgentContext `json:"final_context,omitempty"`
}

// Summary is the listing row for one stored session.
type Summary struct {
	Key            string    `json:"key"`
	SessionID      string    `json:"session_id"`
	Timestamp      time.Time `json:"timestamp"`
	InitialCommand string    `json:"initial_command"`
	FinalState     string    `json:"final_state"`
	StepsTaken     int       `json:"steps_taken"`
}

// Options configures a Store.
type Options struct {
	// Dir is the BadgerDB directory, e.g. ~/.debugbuddy/history. A
	// leading ~ expands to the user home. Required unless InMemory.
	Dir string

	// InMemory keeps records in process memory only. For tests.
	InMemory bool

	// Logger defaults to the process logger.
	Logger *logging.Logger
}

// Store is the badger-backed session log.
type Store struct {
	db     *badger.DB
	log    *logging.Logger
	closed atomic.Bool
}

// Open creates or opens the session store.
//
// Inputs:
//   - opts: store location and logging; see Options
//
// Outputs:
//   - *Store: ready for use; the caller must Close it
//   - error: non-nil when the directory cannot be created or the
//     database cannot be opened
func Open(opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}

	var dbOpts badger.Options
	if opts.InMemory {
		dbOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Dir == "" {
			return nil, errors.New("dir is required for a persistent store")
		}
		dir := expandHome(opts.Dir)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("creating history directory %s: %w", dir, err)
		}
		dbOpts = badger.DefaultOptions(dir)
	}
	// Disable BadgerDB's internal logging.
	dbOpts = dbOpts.WithLogger(nil)

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("opening history store: %w", err)
	}
	return &Store{db: db, log: opts.Logger}, nil
}

// Save writes one session record and returns its key.
//
// Unset bookkeeping fields are filled in place: SessionType defaults
// to "agentic", Timestamp to now, SessionID to a fresh UUID.
func (s *Store) Save(ctx context.Context, rec *Record) (string, error) {
	if rec == nil {
		return "", errors.New("record must not be nil")
	}
	if s.closed.Load() {
		return "", ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if rec.SessionType == "" {
		rec.SessionType = SessionTypeAgentic
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	if rec.SessionID == "" {
		rec.SessionID = uuid.NewString()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encoding session record: %w", err)
	}

	key := sessionKey(rec.Timestamp, rec.SessionID)
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return "", fmt.Errorf("writing session record: %w", err)
	}

	s.log.Debug("session log saved",
		"key", key,
		"bytes", len(data),
		"steps", rec.StepsTaken,
		"final_state", rec.FinalState)
	return key, nil
}

// Get returns the record stored under an exact key.
func (s *Store) Get(ctx context.Context, key string) (*Record, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rec Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &rec); err != nil {
				return fmt.Errorf("decoding %s: %w", key, err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Find resolves a loose session reference to its record. The reference
// may be a full key, a session id, or an id prefix. The newest match
// wins when a short prefix matches several sessions.
func (s *Store) Find(ctx context.Context, ref string) (*Record, error) {
	if ref == "" {
		return nil, fmt.Errorf("%w: empty reference", ErrNotFound)
	}
	if strings.HasPrefix(ref, keyPrefix) {
		return s.Get(ctx, ref)
	}
	key, err := s.findKey(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, key)
}

// findKey scans keys newest first for an id segment with the given
// prefix.
func (s *Store) findKey(ctx context.Context, ref string) (string, error) {
	if s.closed.Load() {
		return "", ErrStoreClosed
	}

	var found string
	prefix := []byte(keyPrefix)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = true

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seekLast()); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := string(it.Item().Key())
			if strings.HasPrefix(recordID(key), ref) {
				found = key
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrNotFound, ref)
	})
	if err != nil {
		return "", err
	}
	return found, nil
}

// List returns summaries of the most recent sessions, newest first.
// A non-positive limit takes DefaultListLimit.
func (s *Store) List(ctx context.Context, limit int) ([]Summary, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var out []Summary
	prefix := []byte(keyPrefix)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seekLast()); it.ValidForPrefix(prefix) && len(out) < limit; it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key := string(item.Key())
			err := item.Value(func(val []byte) error {
				var rec Record
				if err := json.Unmarshal(val, &rec); err != nil {
					return fmt.Errorf("decoding %s: %w", key, err)
				}
				out = append(out, Summary{
					Key:            key,
					SessionID:      rec.SessionID,
					Timestamp:      rec.Timestamp,
					InitialCommand: rec.InitialCommand,
					FinalState:     rec.FinalState,
					StepsTaken:     rec.StepsTaken,
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Len returns the number of stored sessions.
func (s *Store) Len(ctx context.Context) (int, error) {
	if s.closed.Load() {
		return 0, ErrStoreClosed
	}

	count := 0
	prefix := []byte(keyPrefix)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Close releases the database. Safe to call more than once.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// sessionKey builds the chronologically sortable record key.
func sessionKey(ts time.Time, id string) string {
	return fmt.Sprintf("%s%020d:%s", keyPrefix, ts.UnixNano(), id)
}

// recordID extracts the id segment from a record key.
func recordID(key string) string {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 {
		return ""
	}
	return parts[2]
}

// seekLast returns a seek target sorting after every record key, so a
// reverse scan starts at the newest session.
func seekLast() []byte {
	return append([]byte(keyPrefix), 0xFF)
}

// expandHome expands a leading ~ to the user's home directory.
func expandHome(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
