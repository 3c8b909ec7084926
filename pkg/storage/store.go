// Copyright 2025 Aura Calistenia
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/EagleChen/mapmutex"
	"github.com/goccy/go-json"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/aura-calistenia/aura-state/pkg/cache"
	"github.com/aura-calistenia/aura-state/pkg/config"
	"github.com/aura-calistenia/aura-state/pkg/logger"
)

// ErrBusy is returned by Update when the per-document lock could not be
// acquired after its internal retries.
var ErrBusy = errors.New("document is locked by another update")

// UpdateFunc mutates the current value of a document. Returning save=false
// turns the update into a read; returning an error aborts without saving.
type UpdateFunc func(current interface{}) (next interface{}, save bool, err error)

// Store is the document façade over the two backends. When a remote backend
// is configured every operation tries it first and degrades to local on any
// fault, recording the error for the status panel. Reads are served through
// the document cache; writes refresh it, so a process always reads its own
// writes even while the cache window is open.
type Store struct {
	local  Backend
	remote RemoteBackend

	docCache    *cache.DocumentCache
	statusCache *gocache.Cache
	urlSource   string

	locks  *mapmutex.Mutex
	logger *zap.SugaredLogger

	errMutex sync.Mutex
	lastErr  string
}

// New creates a store over the given backends. remote may be nil, which runs
// the store local-only. Cache windows come from the config; a zero TTL
// disables the respective cache.
func New(cfg *config.Config, local Backend, remote RemoteBackend) *Store {
	var statusCache *gocache.Cache
	if cfg.StatusTTL > 0 {
		statusCache = gocache.New(cfg.StatusTTL, 2*cfg.StatusTTL)
	}

	return &Store{
		local:       local,
		remote:      remote,
		docCache:    cache.New(cfg.CacheTTL),
		statusCache: statusCache,
		urlSource:   cfg.DatabaseURLSource,
		locks:       mapmutex.NewCustomizedMapMutex(800, 100000000, 10, 1.1, 0.2),
		logger:      logger.For(logger.ComponentStore),
	}
}

// RemoteEnabled reports whether a remote backend is configured.
func (s *Store) RemoteEnabled() bool {
	return s.remote != nil
}

// Cache exposes the document cache, mainly so tests can control its clock.
func (s *Store) Cache() *cache.DocumentCache {
	return s.docCache
}

// Load returns the document stored under key, or def when the document is
// absent or malformed on the serving backend. The result is always a fresh
// JSON-shaped copy; mutating it never affects cached or stored state. Only a
// local read failure is returned as an error.
func (s *Store) Load(ctx context.Context, key string, def interface{}) (interface{}, error) {
	documentLoads.Inc()

	if value, ok := s.docCache.Get(key); ok && value != nil {
		// A cached JSON null is indistinguishable from a miss; any other
		// hit is served straight from the cache.
		documentCacheHits.Inc()
		return value, nil
	}

	if s.RemoteEnabled() {
		raw, found, err := s.remote.Load(ctx, key)
		if err == nil {
			value := s.valueFromPayload(key, raw, found, def)
			s.cacheSet(key, value)
			return cloneValue(value), nil
		}
		s.recordError("load "+key, err)
	}

	raw, found, err := s.local.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	value := s.valueFromPayload(key, raw, found, def)
	s.cacheSet(key, value)
	return cloneValue(value), nil
}

// Save fully replaces the document under key. On remote success the local
// file is left untouched; on remote fault the error is recorded and the save
// lands locally instead. A local write failure propagates.
func (s *Store) Save(ctx context.Context, key string, value interface{}) error {
	documentSaves.Inc()

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode document %s: %w", key, err)
	}

	if s.RemoteEnabled() {
		err := s.remote.Save(ctx, key, raw)
		if err == nil {
			s.cacheSet(key, value)
			return nil
		}
		s.recordError("save "+key, err)
	}

	if err := s.local.Save(ctx, key, raw); err != nil {
		return err
	}
	s.cacheSet(key, value)
	return nil
}

// Seed initializes the document under key with def unless it already exists.
// With a remote backend, an existing readable local document is offered as
// the payload instead of def, which migrates first-boot local data into the
// shared table. Seeding never overwrites and is safe to re-run.
func (s *Store) Seed(ctx context.Context, key string, def interface{}) error {
	defRaw, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to encode default for %s: %w", key, err)
	}

	if s.RemoteEnabled() {
		payload := defRaw
		if raw, found, loadErr := s.local.Load(ctx, key); loadErr == nil && found && json.Valid(raw) {
			payload = raw
		}
		inserted, err := s.remote.Seed(ctx, key, payload)
		if err == nil {
			if inserted {
				if value, decErr := decodeRaw(payload); decErr == nil {
					s.cacheSet(key, value)
				}
			}
			return nil
		}
		s.recordError("seed "+key, err)
	}

	inserted, err := s.local.Seed(ctx, key, defRaw)
	if err != nil {
		return err
	}
	if inserted {
		s.cacheSet(key, def)
	}
	return nil
}

// Exists reports whether a document is stored under key on the serving
// backend.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if s.RemoteEnabled() {
		found, err := s.remote.Exists(ctx, key)
		if err == nil {
			return found, nil
		}
		s.recordError("exists "+key, err)
	}
	return s.local.Exists(ctx, key)
}

// Update runs a read-modify-write sequence under a per-document lock, so
// concurrent updates to the same document in this process cannot lose
// writes. Writers in other processes still race last-writer-wins.
func (s *Store) Update(ctx context.Context, key string, def interface{}, fn UpdateFunc) error {
	if !s.locks.TryLock(key) {
		return fmt.Errorf("%w: %s", ErrBusy, key)
	}
	defer s.locks.Unlock(key)

	current, err := s.Load(ctx, key, def)
	if err != nil {
		return err
	}
	next, save, err := fn(current)
	if err != nil {
		return err
	}
	if !save {
		return nil
	}
	return s.Save(ctx, key, next)
}

// LastError returns the most recent remote fault, formatted as
// "type: message", or "" when the last probe succeeded.
func (s *Store) LastError() string {
	s.errMutex.Lock()
	defer s.errMutex.Unlock()
	return s.lastErr
}

func (s *Store) recordError(op string, err error) {
	remoteFaults.Inc()
	detail := errorDetail(err)
	s.errMutex.Lock()
	s.lastErr = detail
	s.errMutex.Unlock()
	s.logger.Warnf("Remote %s failed, falling back to local: %s", op, err)
}

func (s *Store) clearLastError() {
	s.errMutex.Lock()
	s.lastErr = ""
	s.errMutex.Unlock()
}

// valueFromPayload turns a backend payload into a document value, replacing
// absent or malformed payloads with the default.
func (s *Store) valueFromPayload(key string, raw []byte, found bool, def interface{}) interface{} {
	if !found {
		return def
	}
	value, err := decodeRaw(raw)
	if err != nil {
		s.logger.Warnf("Document %s is malformed, serving default: %s", key, err)
		return def
	}
	return value
}

func (s *Store) cacheSet(key string, value interface{}) {
	s.docCache.Set(key, value)
	cacheEntries.Set(float64(s.docCache.Len()))
}

func decodeRaw(raw []byte) (interface{}, error) {
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, err
	}
	return value, nil
}

// cloneValue returns a JSON round-trip copy, so callers never share
// structure with defaults or cached entries.
func cloneValue(value interface{}) interface{} {
	raw, err := json.Marshal(value)
	if err != nil {
		return value
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return value
	}
	return out
}

// errorDetail renders err as "type: message" using the innermost cause's
// type, mirroring how the status panel displays backend faults.
func errorDetail(err error) string {
	root := err
	for {
		unwrapped := errors.Unwrap(root)
		if unwrapped == nil {
			break
		}
		root = unwrapped
	}
	return fmt.Sprintf("%T: %s", root, err)
}
