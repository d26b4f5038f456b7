// Package store persists upstream query results as JSON documents with
// a small envelope of metadata around each payload.
package store

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/trackside/f1radio-cache/backend"
	"github.com/trackside/f1radio-cache/openf1"
)

const (
	kindRadios   = "radios"
	kindSessions = "sessions"

	sessionsKey = "sessions/sessions.json"
)

// envelope wraps a cached payload with metadata describing when it was
// saved, how many records it holds, and a content hash of the records.
type envelope struct {
	Kind        string          `json:"kind"`
	Key         string          `json:"key"`
	SavedAt     time.Time       `json:"saved_at"`
	Count       int             `json:"count"`
	ContentHash string          `json:"content_hash"`
	Records     json.RawMessage `json:"records"`
}

// EntryInfo describes a single cached radio entry.
type EntryInfo struct {
	SessionKey  int       `json:"session_key"`
	RadioCount  int       `json:"radio_count"`
	SavedAt     time.Time `json:"saved_at"`
	FileSize    int64     `json:"file_size"`
	ContentHash string    `json:"content_hash"`
}

// Store reads and writes cached documents through a backend.
type Store struct {
	backend backend.Backend
	logger  *slog.Logger
	now     func() time.Time
	locks   keyedMutex
}

// Option is a function that configures a Store.
type Option func(*Store)

// WithLogger sets the logger used by the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithClock overrides the clock used for saved_at timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a store on top of the given backend.
func New(b backend.Backend, opts ...Option) *Store {
	s := &Store{
		backend: b,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func radioKey(sessionKey int) string {
	return fmt.Sprintf("radios/session_%d.json", sessionKey)
}

// SaveRadios stores the team radio messages for a session. It returns
// true when the write succeeded. Failures are logged, never fatal, so a
// cold cache degrades service rather than breaking it.
func (s *Store) SaveRadios(ctx context.Context, sessionKey int, radios []openf1.RadioMessage) bool {
	key := radioKey(sessionKey)
	if !s.save(ctx, kindRadios, key, len(radios), radios) {
		return false
	}
	s.logger.Debug("saved radios", "session_key", sessionKey, "count", len(radios))
	return true
}

// LoadRadios returns the cached radio messages for a session, or nil
// when the session has no cache entry or the entry cannot be decoded.
func (s *Store) LoadRadios(ctx context.Context, sessionKey int) []openf1.RadioMessage {
	var radios []openf1.RadioMessage
	if !s.load(ctx, radioKey(sessionKey), &radios) {
		return nil
	}
	return radios
}

// SaveSessions stores the full session list.
func (s *Store) SaveSessions(ctx context.Context, sessions []openf1.Session) bool {
	if !s.save(ctx, kindSessions, sessionsKey, len(sessions), sessions) {
		return false
	}
	s.logger.Debug("saved sessions", "count", len(sessions))
	return true
}

// LoadSessions returns the cached session list, or nil when absent or
// undecodable.
func (s *Store) LoadSessions(ctx context.Context) []openf1.Session {
	var sessions []openf1.Session
	if !s.load(ctx, sessionsKey, &sessions) {
		return nil
	}
	return sessions
}

func (s *Store) save(ctx context.Context, kind, key string, count int, records any) bool {
	unlock := s.locks.lock(key)
	defer unlock()

	payload, err := json.Marshal(records)
	if err != nil {
		s.logger.Error("failed to encode records", "key", key, "error", err)
		return false
	}

	env := envelope{
		Kind:        kind,
		Key:         key,
		SavedAt:     s.now().UTC(),
		Count:       count,
		ContentHash: contentHash(payload),
		Records:     payload,
	}

	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		s.logger.Error("failed to encode envelope", "key", key, "error", err)
		return false
	}

	if err := s.backend.Write(ctx, key, data); err != nil {
		s.logger.Error("failed to write cache entry", "key", key, "error", err)
		return false
	}
	return true
}

func (s *Store) load(ctx context.Context, key string, records any) bool {
	unlock := s.locks.lock(key)
	defer unlock()

	data, err := s.backend.Read(ctx, key)
	if err != nil {
		if !errors.Is(err, backend.ErrNotFound) {
			s.logger.Warn("failed to read cache entry", "key", key, "error", err)
		}
		return false
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.logger.Warn("corrupt cache entry", "key", key, "error", err)
		return false
	}

	if err := json.Unmarshal(env.Records, records); err != nil {
		s.logger.Warn("corrupt cache records", "key", key, "error", err)
		return false
	}
	return true
}

// Entries lists all cached radio entries, most recent session first.
// Entries that cannot be read or decoded are skipped.
func (s *Store) Entries(ctx context.Context) ([]EntryInfo, error) {
	keys, err := s.backend.List(ctx, kindRadios)
	if err != nil {
		return nil, fmt.Errorf("listing cache entries: %w", err)
	}

	entries := make([]EntryInfo, 0, len(keys))
	for _, key := range keys {
		var sessionKey int
		if _, err := fmt.Sscanf(key, "radios/session_%d.json", &sessionKey); err != nil {
			continue
		}

		data, err := s.backend.Read(ctx, key)
		if err != nil {
			s.logger.Warn("skipping unreadable cache entry", "key", key, "error", err)
			continue
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.logger.Warn("skipping corrupt cache entry", "key", key, "error", err)
			continue
		}

		info, err := s.backend.Stat(ctx, key)
		if err != nil {
			s.logger.Warn("skipping unstattable cache entry", "key", key, "error", err)
			continue
		}

		entries = append(entries, EntryInfo{
			SessionKey:  sessionKey,
			RadioCount:  env.Count,
			SavedAt:     env.SavedAt,
			FileSize:    info.Size,
			ContentHash: env.ContentHash,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].SessionKey > entries[j].SessionKey
	})
	return entries, nil
}

// PurgeOlderThan removes cache entries whose files were last modified
// more than maxAge ago. It returns true when the sweep completed
// without errors.
func (s *Store) PurgeOlderThan(ctx context.Context, maxAge time.Duration) bool {
	cutoff := s.now().Add(-maxAge)
	ok := true

	for _, prefix := range []string{kindRadios, kindSessions, "meetings", "drivers"} {
		keys, err := s.backend.List(ctx, prefix)
		if err != nil {
			s.logger.Error("purge list failed", "prefix", prefix, "error", err)
			ok = false
			continue
		}

		for _, key := range keys {
			info, err := s.backend.Stat(ctx, key)
			if err != nil {
				s.logger.Warn("purge stat failed", "key", key, "error", err)
				ok = false
				continue
			}
			if !info.ModTime.Before(cutoff) {
				continue
			}
			if err := s.backend.Delete(ctx, key); err != nil {
				s.logger.Error("purge delete failed", "key", key, "error", err)
				ok = false
				continue
			}
			s.logger.Info("purged stale cache entry", "key", key, "age", s.now().Sub(info.ModTime).Round(time.Second))
		}
	}
	return ok
}

func contentHash(payload []byte) string {
	sum := blake3.Sum256(payload)
	return "blake3:" + hex.EncodeToString(sum[:])
}

// keyedMutex serializes operations per cache key so concurrent writers
// to the same entry cannot interleave.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
