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
	"fmt"
	"strings"
)

// ResetGrant authorizes one password reset for an account. The email is
// stored lowercased; ExpiresAt is epoch seconds.
type ResetGrant struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	ExpiresAt int64  `json:"expires_at"`
}

// CreateReset issues a password-reset token for the (username, email) pair.
// Any previous grant for the same pair is revoked, case-insensitively, so an
// account holds at most one active reset link.
func (m *Manager) CreateReset(ctx context.Context, username, email string) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}

	userKey := strings.ToLower(strings.TrimSpace(username))
	emailKey := strings.ToLower(strings.TrimSpace(email))
	grant := ResetGrant{
		Username:  strings.TrimSpace(username),
		Email:     emailKey,
		ExpiresAt: m.now().Unix() + int64(m.resetTTL.Seconds()),
	}

	err = m.store.Update(ctx, PasswordResetsDocument, emptyDocument(), func(current interface{}) (interface{}, bool, error) {
		grants := m.cleanResets(current)
		for existing, g := range grants {
			if strings.ToLower(g.Username) == userKey && g.Email == emailKey {
				delete(grants, existing)
			}
		}
		grants[token] = grant
		return grants, true, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to create password reset: %w", err)
	}

	m.logger.Debugf("Created password reset for %s", grant.Username)
	return token, nil
}

// PeekReset returns the grant behind token without consuming it, for
// rendering the reset form before the user commits.
func (m *Manager) PeekReset(ctx context.Context, token string) (ResetGrant, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return ResetGrant{}, ErrNotFound
	}

	var grant ResetGrant
	found := false
	err := m.store.Update(ctx, PasswordResetsDocument, emptyDocument(), func(current interface{}) (interface{}, bool, error) {
		grants := m.cleanResets(current)
		grant, found = grants[token]
		return grants, changedFrom(grants, current), nil
	})
	if err != nil {
		return ResetGrant{}, fmt.Errorf("failed to read password reset: %w", err)
	}
	if !found {
		return ResetGrant{}, ErrNotFound
	}
	return grant, nil
}

// ConsumeReset returns the grant behind token and removes it. A second
// consume of the same token comes back as ErrNotFound.
func (m *Manager) ConsumeReset(ctx context.Context, token string) (ResetGrant, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return ResetGrant{}, ErrNotFound
	}

	var grant ResetGrant
	found := false
	err := m.store.Update(ctx, PasswordResetsDocument, emptyDocument(), func(current interface{}) (interface{}, bool, error) {
		grants := m.cleanResets(current)
		grant, found = grants[token]
		delete(grants, token)
		return grants, true, nil
	})
	if err != nil {
		return ResetGrant{}, fmt.Errorf("failed to consume password reset: %w", err)
	}
	if !found {
		return ResetGrant{}, ErrNotFound
	}
	return grant, nil
}

// cleanResets rebuilds the grant map from the entries that are well-formed
// and still live, normalizing usernames and emails on the way.
func (m *Manager) cleanResets(value interface{}) map[string]ResetGrant {
	cleaned := map[string]ResetGrant{}
	doc, ok := value.(map[string]interface{})
	if !ok {
		return cleaned
	}
	now := m.now().Unix()
	for rawToken, rawRecord := range doc {
		token := strings.TrimSpace(rawToken)
		var grant ResetGrant
		if err := decodeRecord(rawRecord, &grant); err != nil {
			continue
		}
		grant.Username = strings.TrimSpace(grant.Username)
		grant.Email = strings.ToLower(strings.TrimSpace(grant.Email))
		if token == "" || grant.Username == "" || grant.Email == "" || grant.ExpiresAt <= now {
			continue
		}
		cleaned[token] = grant
	}
	return cleaned
}
