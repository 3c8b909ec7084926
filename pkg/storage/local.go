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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-calistenia/aura-state/pkg/filesystem"
	"github.com/aura-calistenia/aura-state/pkg/logger"
)

// LocalBackend stores one pretty-printed JSON file per document key inside a
// single data directory. All writes go through a process-wide mutex and land
// via a temp file plus rename, so a file is either the old document or the
// new one, never a torn write.
type LocalBackend struct {
	dataDir   string
	fsService filesystem.Service
	logger    *zap.SugaredLogger
	mutex     sync.Mutex
}

// NewLocalBackend creates a local backend rooted at dataDir.
func NewLocalBackend(dataDir string, fsService filesystem.Service) *LocalBackend {
	return &LocalBackend{
		dataDir:   dataDir,
		fsService: fsService,
		logger:    logger.For(logger.ComponentLocalStore),
	}
}

// FilePath returns the file a document key is stored in.
func (b *LocalBackend) FilePath(key string) string {
	return filepath.Join(b.dataDir, key+".json")
}

// Load reads the document file for key. A missing file is a miss, not an
// error; any other read failure propagates.
func (b *LocalBackend) Load(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := b.fsService.ReadFile(ctx, b.FilePath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read document %s: %w", key, err)
	}
	return data, true, nil
}

// Save fully replaces the document file for key.
func (b *LocalBackend) Save(ctx context.Context, key string, raw []byte) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.writeLocked(ctx, key, raw)
}

// Seed writes the payload only when no file exists for key yet.
func (b *LocalBackend) Seed(ctx context.Context, key string, raw []byte) (bool, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	exists, err := b.fsService.PathExists(ctx, b.FilePath(key))
	if err != nil {
		return false, fmt.Errorf("failed to check document %s: %w", key, err)
	}
	if exists {
		return false, nil
	}
	if err := b.writeLocked(ctx, key, raw); err != nil {
		return false, err
	}
	return true, nil
}

// Exists reports whether a document file is present for key.
func (b *LocalBackend) Exists(ctx context.Context, key string) (bool, error) {
	return b.fsService.PathExists(ctx, b.FilePath(key))
}

// writeLocked writes the payload through a temp file and renames it over the
// target. Callers must hold the mutex.
func (b *LocalBackend) writeLocked(ctx context.Context, key string, raw []byte) error {
	if err := b.fsService.EnsureDirectory(ctx, b.dataDir); err != nil {
		return fmt.Errorf("failed to ensure data directory: %w", err)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		// Not valid JSON; store the payload untouched rather than losing it.
		pretty.Reset()
		pretty.Write(raw)
	}

	target := b.FilePath(key)
	tmp := target + "." + uuid.NewString() + ".tmp"
	if err := b.fsService.WriteFile(ctx, tmp, pretty.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write document %s: %w", key, err)
	}
	if err := b.fsService.Rename(ctx, tmp, target); err != nil {
		if removeErr := b.fsService.Remove(ctx, tmp); removeErr != nil {
			b.logger.Warnf("Failed to clean up temp file %s: %s", tmp, removeErr)
		}
		return fmt.Errorf("failed to replace document %s: %w", key, err)
	}
	return nil
}
