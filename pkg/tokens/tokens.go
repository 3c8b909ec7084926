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

// Package tokens manages the three expiring token families kept as documents
// in the store: login sessions, password-reset grants and application review
// grants. Expiry is lazy: every operation rebuilds its document from the
// entries that are still live and persists the result when anything was
// dropped or repaired. A token is random enough to be the secret itself, so
// records never carry additional authentication state.
package tokens

import (
	"crypto/rand"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/cristalhq/base64"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/aura-calistenia/aura-state/pkg/config"
	"github.com/aura-calistenia/aura-state/pkg/logger"
	"github.com/aura-calistenia/aura-state/pkg/storage"
)

// Document keys owned by this package.
const (
	SessionsDocument       = "sessions"
	PasswordResetsDocument = "password_resets"
	ReviewGrantsDocument   = "application_review_tokens"
)

const tokenBytes = 32

// ErrNotFound is returned when a token is unknown or has expired. The two
// cases are indistinguishable on purpose.
var ErrNotFound = errors.New("token not found or expired")

// ErrMissingAppID is returned by CreateReview for a blank application id.
var ErrMissingAppID = errors.New("application id is required")

// Manager issues, validates and retires tokens on top of the document store.
// All mutations run through Store.Update, so concurrent token operations on
// the same family cannot lose each other's writes.
type Manager struct {
	store  *storage.Store
	logger *zap.SugaredLogger

	sessionTTL time.Duration
	resetTTL   time.Duration
	reviewTTL  time.Duration

	now func() time.Time
}

// NewManager creates a token manager with the TTLs from cfg.
func NewManager(store *storage.Store, cfg *config.Config) *Manager {
	return &Manager{
		store:      store,
		logger:     logger.For(logger.ComponentTokens),
		sessionTTL: cfg.SessionTTL,
		resetTTL:   cfg.ResetTTL,
		reviewTTL:  cfg.ReviewTTL,
		now:        time.Now,
	}
}

// WithClock replaces the time source, used by tests to control expiry.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// newToken draws a fresh URL-safe token, 43 characters for 32 random bytes.
func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to draw token randomness: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// decodeRecord re-shapes a raw document entry into a typed record. Entries
// that do not fit the record shape are treated as corrupt and dropped by the
// caller.
func decodeRecord(value interface{}, target interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, target)
}

// changedFrom reports whether the cleaned map no longer matches the stored
// document, which is what decides if a read has to write the prune back.
// Both sides are normalized through JSON first so typed records and raw
// document maps compare by shape.
func changedFrom(cleaned interface{}, stored interface{}) bool {
	c, err := reshape(cleaned)
	if err != nil {
		return true
	}
	s, err := reshape(stored)
	if err != nil {
		return true
	}
	return !reflect.DeepEqual(c, s)
}

func reshape(value interface{}) (interface{}, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func emptyDocument() map[string]interface{} {
	return map[string]interface{}{}
}
