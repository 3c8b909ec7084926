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

package filesystem

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// MockFileSystem is a mock implementation of the filesystem Service interface.
// It keeps files in memory and lets tests override individual operations via
// the *Func fields.
type MockFileSystem struct {
	EnsureDirectoryFunc func(ctx context.Context, path string) error
	ReadFileFunc        func(ctx context.Context, path string) ([]byte, error)
	WriteFileFunc       func(ctx context.Context, path string, data []byte, perm os.FileMode) error
	PathExistsFunc      func(ctx context.Context, path string) (bool, error)
	RemoveFunc          func(ctx context.Context, path string) error
	StatFunc            func(ctx context.Context, path string) (os.FileInfo, error)
	ReadDirFunc         func(ctx context.Context, path string) ([]os.DirEntry, error)
	RenameFunc          func(ctx context.Context, oldPath, newPath string) error

	files map[string][]byte
	dirs  map[string]bool
	mutex sync.Mutex
}

// NewMockFileSystem creates a new MockFileSystem instance.
func NewMockFileSystem() *MockFileSystem {
	return &MockFileSystem{
		files: make(map[string][]byte),
		dirs:  make(map[string]bool),
	}
}

// WithFile preloads a file into the mock.
func (m *MockFileSystem) WithFile(path string, data []byte) *MockFileSystem {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.files[filepath.Clean(path)] = data
	return m
}

// Files returns a snapshot of the current file contents by path.
func (m *MockFileSystem) Files() map[string][]byte {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	snapshot := make(map[string][]byte, len(m.files))
	for path, data := range m.files {
		cp := make([]byte, len(data))
		copy(cp, data)
		snapshot[path] = cp
	}
	return snapshot
}

// EnsureDirectory creates a directory if it doesn't exist.
func (m *MockFileSystem) EnsureDirectory(ctx context.Context, path string) error {
	if m.EnsureDirectoryFunc != nil {
		return m.EnsureDirectoryFunc(ctx, path)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.dirs[filepath.Clean(path)] = true
	return nil
}

// ReadFile reads a file's contents.
func (m *MockFileSystem) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if m.ReadFileFunc != nil {
		return m.ReadFileFunc(ctx, path)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	data, ok := m.files[filepath.Clean(path)]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// WriteFile writes data to a file.
func (m *MockFileSystem) WriteFile(ctx context.Context, path string, data []byte, perm os.FileMode) error {
	if m.WriteFileFunc != nil {
		return m.WriteFileFunc(ctx, path, data, perm)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.files[filepath.Clean(path)] = cp
	return nil
}

// PathExists checks if a file or directory exists at the given path.
func (m *MockFileSystem) PathExists(ctx context.Context, path string) (bool, error) {
	if m.PathExistsFunc != nil {
		return m.PathExistsFunc(ctx, path)
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	clean := filepath.Clean(path)
	if _, ok := m.files[clean]; ok {
		return true, nil
	}
	return m.dirs[clean], nil
}

// Remove removes a file or directory.
func (m *MockFileSystem) Remove(ctx context.Context, path string) error {
	if m.RemoveFunc != nil {
		return m.RemoveFunc(ctx, path)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	clean := filepath.Clean(path)
	if _, ok := m.files[clean]; !ok && !m.dirs[clean] {
		return &fs.PathError{Op: "remove", Path: path, Err: fs.ErrNotExist}
	}
	delete(m.files, clean)
	delete(m.dirs, clean)
	return nil
}

// Stat returns file info.
func (m *MockFileSystem) Stat(ctx context.Context, path string) (os.FileInfo, error) {
	if m.StatFunc != nil {
		return m.StatFunc(ctx, path)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	clean := filepath.Clean(path)
	if data, ok := m.files[clean]; ok {
		return mockFileInfo{name: filepath.Base(clean), size: int64(len(data))}, nil
	}
	if m.dirs[clean] {
		return mockFileInfo{name: filepath.Base(clean), dir: true}, nil
	}
	return nil, &fs.PathError{Op: "stat", Path: path, Err: fs.ErrNotExist}
}

// ReadDir reads a directory, returning all its file entries.
func (m *MockFileSystem) ReadDir(ctx context.Context, path string) ([]os.DirEntry, error) {
	if m.ReadDirFunc != nil {
		return m.ReadDirFunc(ctx, path)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	clean := filepath.Clean(path)
	var entries []os.DirEntry
	for file, data := range m.files {
		if filepath.Dir(file) == clean {
			entries = append(entries, mockDirEntry{info: mockFileInfo{name: filepath.Base(file), size: int64(len(data))}})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries, nil
}

// Rename renames (moves) a file from oldPath to newPath.
func (m *MockFileSystem) Rename(ctx context.Context, oldPath, newPath string) error {
	if m.RenameFunc != nil {
		return m.RenameFunc(ctx, oldPath, newPath)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	oldClean := filepath.Clean(oldPath)
	data, ok := m.files[oldClean]
	if !ok {
		return &fs.PathError{Op: "rename", Path: oldPath, Err: fs.ErrNotExist}
	}
	delete(m.files, oldClean)
	m.files[filepath.Clean(newPath)] = data
	return nil
}

type mockFileInfo struct {
	name string
	size int64
	dir  bool
}

func (i mockFileInfo) Name() string       { return i.name }
func (i mockFileInfo) Size() int64        { return i.size }
func (i mockFileInfo) Mode() os.FileMode  { return 0644 }
func (i mockFileInfo) ModTime() time.Time { return time.Time{} }
func (i mockFileInfo) IsDir() bool        { return i.dir }
func (i mockFileInfo) Sys() any           { return nil }

type mockDirEntry struct {
	info mockFileInfo
}

func (e mockDirEntry) Name() string               { return e.info.name }
func (e mockDirEntry) IsDir() bool                { return e.info.dir }
func (e mockDirEntry) Type() os.FileMode          { return e.info.Mode().Type() }
func (e mockDirEntry) Info() (os.FileInfo, error) { return e.info, nil }
