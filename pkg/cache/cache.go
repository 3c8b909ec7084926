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

// Package cache provides the time-bounded document cache that sits in front
// of the storage backends. Entries are held as marshalled JSON so that every
// read hands out a fresh copy; callers can never mutate cached state through
// a returned value.
package cache

import (
	"sync"
	"time"

	"github.com/goccy/go-json"
)

type entry struct {
	storedAt time.Time
	raw      []byte
}

// DocumentCache is a TTL-bounded cache for JSON document values. Expired
// entries are evicted lazily on read; there is no background sweeper.
type DocumentCache struct {
	ttl     time.Duration
	now     func() time.Time
	entries map[string]entry
	mutex   sync.Mutex
}

// New creates a document cache with the given freshness window. A TTL of
// zero (or less) disables the cache entirely: Set stores nothing and Get
// always misses.
func New(ttl time.Duration) *DocumentCache {
	return &DocumentCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry),
	}
}

// WithClock replaces the time source, used by tests to control expiry.
func (c *DocumentCache) WithClock(now func() time.Time) *DocumentCache {
	c.now = now
	return c
}

// Enabled reports whether the cache stores anything at all.
func (c *DocumentCache) Enabled() bool {
	return c.ttl > 0
}

// Get returns a fresh copy of the cached value for key. The second return
// is false when the key is absent or its entry has aged out; aged entries
// are removed on the way.
func (c *DocumentCache) Get(key string) (interface{}, bool) {
	if !c.Enabled() {
		return nil, false
	}

	c.mutex.Lock()
	e, ok := c.entries[key]
	if ok && c.now().Sub(e.storedAt) > c.ttl {
		delete(c.entries, key)
		ok = false
	}
	c.mutex.Unlock()

	if !ok {
		return nil, false
	}

	var value interface{}
	if err := json.Unmarshal(e.raw, &value); err != nil {
		c.Delete(key)
		return nil, false
	}
	return value, true
}

// Set stores a copy of value under key with a fresh timestamp. Values that
// cannot be marshalled are skipped; the next read simply goes to the backend.
func (c *DocumentCache) Set(key string, value interface{}) {
	if !c.Enabled() {
		return
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return
	}

	c.mutex.Lock()
	c.entries[key] = entry{storedAt: c.now(), raw: raw}
	c.mutex.Unlock()
}

// Delete removes the entry for key, if any.
func (c *DocumentCache) Delete(key string) {
	c.mutex.Lock()
	delete(c.entries, key)
	c.mutex.Unlock()
}

// Len returns the number of entries currently held, expired ones included.
func (c *DocumentCache) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.entries)
}
