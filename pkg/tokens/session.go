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
)

// SessionRecord is one login session. Expires is epoch seconds with
// sub-second precision.
type SessionRecord struct {
	User    string  `json:"user"`
	Role    string  `json:"role"`
	Expires float64 `json:"expires"`
}

// CreateSession issues a session token for user with the given role. Expired
// sessions are pruned on the way.
func (m *Manager) CreateSession(ctx context.Context, user, role string) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}
	record := SessionRecord{
		User:    user,
		Role:    role,
		Expires: epochSeconds(m.now()) + m.sessionTTL.Seconds(),
	}

	err = m.store.Update(ctx, SessionsDocument, emptyDocument(), func(current interface{}) (interface{}, bool, error) {
		sessions := m.cleanSessions(current)
		sessions[token] = record
		return sessions, true, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	m.logger.Debugf("Created session for %s (%s)", user, role)
	return token, nil
}

// LookupSession returns the live session behind token. A non-empty role must
// match the session's role exactly; unknown, expired and wrong-role tokens
// all come back as ErrNotFound. Pruned entries are persisted when the
// document changed.
func (m *Manager) LookupSession(ctx context.Context, token, role string) (SessionRecord, error) {
	if token == "" {
		return SessionRecord{}, ErrNotFound
	}

	var record SessionRecord
	found := false
	err := m.store.Update(ctx, SessionsDocument, emptyDocument(), func(current interface{}) (interface{}, bool, error) {
		sessions := m.cleanSessions(current)
		if candidate, ok := sessions[token]; ok {
			if role == "" || candidate.Role == role {
				record = candidate
				found = true
			}
		}
		return sessions, changedFrom(sessions, current), nil
	})
	if err != nil {
		return SessionRecord{}, fmt.Errorf("failed to look up session: %w", err)
	}
	if !found {
		return SessionRecord{}, ErrNotFound
	}
	return record, nil
}

// DeleteSession removes the session behind token. Unknown tokens are not an
// error and do not touch the document.
func (m *Manager) DeleteSession(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return m.store.Update(ctx, SessionsDocument, emptyDocument(), func(current interface{}) (interface{}, bool, error) {
		doc, ok := current.(map[string]interface{})
		if !ok {
			return nil, false, nil
		}
		if _, exists := doc[token]; !exists {
			return nil, false, nil
		}
		delete(doc, token)
		return doc, true, nil
	})
}

// cleanSessions rebuilds the session map from the entries that have not
// expired yet. Entries that do not decode are dropped.
func (m *Manager) cleanSessions(value interface{}) map[string]SessionRecord {
	cleaned := map[string]SessionRecord{}
	doc, ok := value.(map[string]interface{})
	if !ok {
		return cleaned
	}
	now := epochSeconds(m.now())
	for token, rawRecord := range doc {
		var record SessionRecord
		if err := decodeRecord(rawRecord, &record); err != nil {
			continue
		}
		if record.Expires > now {
			cleaned[token] = record
		}
	}
	return cleaned
}
