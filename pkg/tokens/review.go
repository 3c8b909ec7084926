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

// Review decisions a grant can record.
const (
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
)

// ReviewGrant lets the holder decide one coaching application without
// logging in. The grant survives its first use so a revisited link can
// answer with the decision that was made, instead of a dead page.
type ReviewGrant struct {
	AppID        string `json:"app_id"`
	ExpiresAt    int64  `json:"expires_at"`
	Used         bool   `json:"used"`
	UsedDecision string `json:"used_decision,omitempty"`
	UsedAt       int64  `json:"used_at,omitempty"`
}

// CreateReview issues a review token for the application. Existing grants
// for the same application are revoked first, so only the latest emailed
// link works.
func (m *Manager) CreateReview(ctx context.Context, appID string) (string, error) {
	appKey := strings.TrimSpace(appID)
	if appKey == "" {
		return "", ErrMissingAppID
	}

	token, err := newToken()
	if err != nil {
		return "", err
	}
	grant := ReviewGrant{
		AppID:     appKey,
		ExpiresAt: m.now().Unix() + int64(m.reviewTTL.Seconds()),
	}

	err = m.store.Update(ctx, ReviewGrantsDocument, emptyDocument(), func(current interface{}) (interface{}, bool, error) {
		grants := m.cleanReviews(current)
		for existing, g := range grants {
			if g.AppID == appKey {
				delete(grants, existing)
			}
		}
		grants[token] = grant
		return grants, true, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to create review grant: %w", err)
	}

	m.logger.Debugf("Created review grant for application %s", appKey)
	return token, nil
}

// PeekReview returns the grant behind token without using it.
func (m *Manager) PeekReview(ctx context.Context, token string) (ReviewGrant, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return ReviewGrant{}, ErrNotFound
	}

	var grant ReviewGrant
	found := false
	err := m.store.Update(ctx, ReviewGrantsDocument, emptyDocument(), func(current interface{}) (interface{}, bool, error) {
		grants := m.cleanReviews(current)
		grant, found = grants[token]
		return grants, changedFrom(grants, current), nil
	})
	if err != nil {
		return ReviewGrant{}, fmt.Errorf("failed to read review grant: %w", err)
	}
	if !found {
		return ReviewGrant{}, ErrNotFound
	}
	return grant, nil
}

// UseReview records decision on the grant behind token. The first use marks
// the grant used and persists the normalized decision; any later use leaves
// the grant untouched and reports alreadyUsed together with the original
// record, so callers can replay what was decided.
func (m *Manager) UseReview(ctx context.Context, token, decision string) (ReviewGrant, bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return ReviewGrant{}, false, ErrNotFound
	}
	normalized := NormalizeDecision(decision)

	var grant ReviewGrant
	found := false
	alreadyUsed := false
	err := m.store.Update(ctx, ReviewGrantsDocument, emptyDocument(), func(current interface{}) (interface{}, bool, error) {
		grants := m.cleanReviews(current)
		candidate, ok := grants[token]
		if !ok {
			return grants, changedFrom(grants, current), nil
		}
		found = true
		if candidate.Used {
			alreadyUsed = true
			grant = candidate
			return grants, changedFrom(grants, current), nil
		}
		candidate.Used = true
		if normalized != "" {
			candidate.UsedDecision = normalized
		}
		candidate.UsedAt = m.now().Unix()
		grants[token] = candidate
		grant = candidate
		return grants, true, nil
	})
	if err != nil {
		return ReviewGrant{}, false, fmt.Errorf("failed to use review grant: %w", err)
	}
	if !found {
		return ReviewGrant{}, false, ErrNotFound
	}
	return grant, alreadyUsed, nil
}

// NormalizeDecision maps the accepted spellings of a review decision onto
// the stored values; anything else normalizes to the empty string.
func NormalizeDecision(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "approve", DecisionApproved:
		return DecisionApproved
	case "reject", DecisionRejected:
		return DecisionRejected
	}
	return ""
}

// cleanReviews rebuilds the grant map from the entries that are well-formed
// and still live. Decisions outside the accepted set are cleared, and a
// use timestamp is only kept on grants that are actually used.
func (m *Manager) cleanReviews(value interface{}) map[string]ReviewGrant {
	cleaned := map[string]ReviewGrant{}
	doc, ok := value.(map[string]interface{})
	if !ok {
		return cleaned
	}
	now := m.now().Unix()
	for rawToken, rawRecord := range doc {
		token := strings.TrimSpace(rawToken)
		var grant ReviewGrant
		if err := decodeRecord(rawRecord, &grant); err != nil {
			continue
		}
		grant.AppID = strings.TrimSpace(grant.AppID)
		if token == "" || grant.AppID == "" || grant.ExpiresAt <= now {
			continue
		}
		grant.UsedDecision = strings.ToLower(strings.TrimSpace(grant.UsedDecision))
		if grant.UsedDecision != DecisionApproved && grant.UsedDecision != DecisionRejected {
			grant.UsedDecision = ""
		}
		if !grant.Used || grant.UsedAt <= 0 {
			grant.UsedAt = 0
		}
		cleaned[token] = grant
	}
	return cleaned
}
