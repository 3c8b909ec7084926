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

// Package seed initializes the documents the service needs on first boot.
// Seeding is idempotent: existing documents are never overwritten, so a
// redeploy against a populated store only fills the gaps. The one exception
// is the admin credential block, which is forced back to the configured
// credentials whenever it no longer verifies.
package seed

import (
	"context"
	"fmt"
	"strings"

	"github.com/aura-calistenia/aura-state/pkg/auth"
	"github.com/aura-calistenia/aura-state/pkg/config"
	"github.com/aura-calistenia/aura-state/pkg/logger"
	"github.com/aura-calistenia/aura-state/pkg/storage"
	"github.com/aura-calistenia/aura-state/pkg/tokens"
)

// Document keys seeded at boot, next to the token documents owned by the
// tokens package.
const (
	EventsDocument       = "events"
	VideosDocument       = "videos"
	ApplicationsDocument = "applications"
	SubmissionsDocument  = "submissions"
	ChatsDocument        = "chats"
	SettingsDocument     = "settings"
	ContentDocument      = "content"
)

// Defaults returns the first-boot value for every seeded document, keyed by
// document name. The settings document is not listed; its default depends on
// the configured admin credentials and is built by EnforceAdminCredentials.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		EventsDocument:                []interface{}{},
		VideosDocument:                []interface{}{},
		ApplicationsDocument:          []interface{}{},
		SubmissionsDocument:           []interface{}{},
		ChatsDocument:                 []interface{}{},
		ContentDocument:               map[string]interface{}{},
		tokens.SessionsDocument:       map[string]interface{}{},
		tokens.PasswordResetsDocument: map[string]interface{}{},
		tokens.ReviewGrantsDocument:   map[string]interface{}{},
	}
}

// EnsureDocuments seeds every boot document in order, enforcing the admin
// credentials between the session and content documents the way the site
// has always booted. Safe to re-run.
func EnsureDocuments(ctx context.Context, store *storage.Store, cfg *config.Config) error {
	log := logger.For(logger.ComponentSeed)
	defaults := Defaults()

	before := []string{
		EventsDocument,
		VideosDocument,
		ApplicationsDocument,
		SubmissionsDocument,
		ChatsDocument,
		tokens.SessionsDocument,
	}
	for _, key := range before {
		if err := store.Seed(ctx, key, defaults[key]); err != nil {
			return fmt.Errorf("failed to seed %s: %w", key, err)
		}
	}

	if err := EnforceAdminCredentials(ctx, store, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		return err
	}

	after := []string{
		ContentDocument,
		tokens.PasswordResetsDocument,
		tokens.ReviewGrantsDocument,
	}
	for _, key := range after {
		if err := store.Seed(ctx, key, defaults[key]); err != nil {
			return fmt.Errorf("failed to seed %s: %w", key, err)
		}
	}

	log.Info("Boot documents seeded")
	return nil
}

// EnforceAdminCredentials makes sure the settings document carries an admin
// block that verifies against the configured credentials. A verifying block
// is left exactly as stored; anything else is replaced with a freshly salted
// hash. Other settings keys survive the repair.
func EnforceAdminCredentials(ctx context.Context, store *storage.Store, username, password string) error {
	salt, hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	expected := map[string]interface{}{
		"username": username,
		"salt":     salt,
		"hash":     hash,
	}

	if err := store.Seed(ctx, SettingsDocument, map[string]interface{}{"admin": expected}); err != nil {
		return fmt.Errorf("failed to seed %s: %w", SettingsDocument, err)
	}

	err = store.Update(ctx, SettingsDocument, map[string]interface{}{"admin": expected}, func(current interface{}) (interface{}, bool, error) {
		settings, ok := current.(map[string]interface{})
		if !ok {
			settings = map[string]interface{}{}
		}
		if adminVerifies(settings["admin"], username, password) {
			return nil, false, nil
		}
		settings["admin"] = expected
		return settings, true, nil
	})
	if err != nil {
		return fmt.Errorf("failed to enforce admin credentials: %w", err)
	}
	return nil
}

// adminVerifies reports whether the stored admin block matches the
// configured username and password.
func adminVerifies(value interface{}, username, password string) bool {
	admin, ok := value.(map[string]interface{})
	if !ok {
		return false
	}
	user := strings.TrimSpace(stringField(admin, "username"))
	salt := strings.TrimSpace(stringField(admin, "salt"))
	hash := strings.TrimSpace(stringField(admin, "hash"))
	return user == username && auth.VerifyPassword(password, salt, hash)
}

func stringField(doc map[string]interface{}, key string) string {
	s, _ := doc[key].(string)
	return s
}
