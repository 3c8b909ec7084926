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

// Package storage persists named JSON documents across two interchangeable
// backends: a local file store and a shared Postgres table. The Store façade
// prefers the remote backend per call and degrades to local on any remote
// fault, recording the error for the status panel.
package storage

import "context"

// Document is the common shape of a named JSON document. Documents may also
// be arrays or scalars; the store treats every value as opaque JSON.
type Document = map[string]interface{}

// Backend persists documents as raw JSON payloads under stable string keys.
type Backend interface {
	// Load returns the raw payload for key. found is false when the key has
	// never been written; that is not an error.
	Load(ctx context.Context, key string) (raw []byte, found bool, err error)

	// Save fully replaces the payload for key.
	Save(ctx context.Context, key string, raw []byte) error

	// Seed writes the payload only if the key does not exist yet. It reports
	// whether the payload was actually inserted.
	Seed(ctx context.Context, key string, raw []byte) (inserted bool, err error)

	// Exists reports whether a payload is stored under key.
	Exists(ctx context.Context, key string) (bool, error)
}

// RemoteBackend adds lifecycle and connectivity probing on top of Backend.
type RemoteBackend interface {
	Backend

	// Bootstrap creates the document table if it does not exist.
	Bootstrap(ctx context.Context) error

	// Ping runs a trivial query to verify connectivity.
	Ping(ctx context.Context) error

	// Close releases the connection pool.
	Close()
}
