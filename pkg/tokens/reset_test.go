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

package tokens

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResetLifecycle(t *testing.T) {
	manager, clock, _ := newTestManager(t)

	token, err := manager.CreateReset(context.Background(), " Monica ", " Monica@Example.COM ")
	require.NoError(t, err)

	grant, err := manager.PeekReset(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "Monica", grant.Username, "username keeps its case, trimmed")
	assert.Equal(t, "monica@example.com", grant.Email, "email is stored lowercased")
	assert.Equal(t, clock.Now().Unix()+3600, grant.ExpiresAt)

	_, err = manager.PeekReset(context.Background(), token)
	require.NoError(t, err, "peeking does not consume")

	consumed, err := manager.ConsumeReset(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, grant, consumed)

	_, err = manager.ConsumeReset(context.Background(), token)
	assert.ErrorIs(t, err, ErrNotFound, "a reset link works exactly once")
	_, err = manager.PeekReset(context.Background(), token)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResetSingleActiveGrantPerIdentity(t *testing.T) {
	manager, _, store := newTestManager(t)

	first, err := manager.CreateReset(context.Background(), "monica", "monica@example.com")
	require.NoError(t, err)
	second, err := manager.CreateReset(context.Background(), "MONICA", "Monica@Example.com")
	require.NoError(t, err)

	_, err = manager.PeekReset(context.Background(), first)
	assert.ErrorIs(t, err, ErrNotFound, "requesting again revokes the earlier link")
	_, err = manager.PeekReset(context.Background(), second)
	assert.NoError(t, err)
	assert.Equal(t, 1, documentLen(t, store, PasswordResetsDocument))
}

func TestResetDifferentIdentitiesCoexist(t *testing.T) {
	manager, _, store := newTestManager(t)

	first, err := manager.CreateReset(context.Background(), "monica", "monica@example.com")
	require.NoError(t, err)
	second, err := manager.CreateReset(context.Background(), "monica", "other@example.com")
	require.NoError(t, err)

	_, err = manager.PeekReset(context.Background(), first)
	assert.NoError(t, err, "same username with another email is another identity")
	_, err = manager.PeekReset(context.Background(), second)
	assert.NoError(t, err)
	assert.Equal(t, 2, documentLen(t, store, PasswordResetsDocument))
}

func TestResetExpiry(t *testing.T) {
	manager, clock, store := newTestManager(t)

	token, err := manager.CreateReset(context.Background(), "monica", "monica@example.com")
	require.NoError(t, err)

	clock.Advance(time.Hour - time.Second)
	_, err = manager.PeekReset(context.Background(), token)
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = manager.PeekReset(context.Background(), token)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, documentLen(t, store, PasswordResetsDocument), "the expired grant was pruned from the document")
}

func TestResetCleanupDropsMalformedEntries(t *testing.T) {
	manager, clock, store := newTestManager(t)

	live := clock.Now().Unix() + 600
	require.NoError(t, store.Save(context.Background(), PasswordResetsDocument, map[string]interface{}{
		"good":     map[string]interface{}{"username": "monica", "email": "monica@example.com", "expires_at": live},
		"no-email": map[string]interface{}{"username": "monica", "email": "", "expires_at": live},
		"no-user":  map[string]interface{}{"username": "   ", "email": "x@example.com", "expires_at": live},
		"junk":     42,
		"  ":       map[string]interface{}{"username": "a", "email": "a@example.com", "expires_at": live},
	}))

	grant, err := manager.PeekReset(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "monica", grant.Username)
	assert.Equal(t, 1, documentLen(t, store, PasswordResetsDocument))
}

func TestResetEmptyToken(t *testing.T) {
	manager, _, _ := newTestManager(t)

	_, err := manager.PeekReset(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = manager.ConsumeReset(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotFound)
}
