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
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/aura-calistenia/aura-state/pkg/config"
	"github.com/aura-calistenia/aura-state/pkg/logger"
)

const (
	remoteConnectTimeout   = 5 * time.Second
	remoteOperationTimeout = 5 * time.Second
)

// dbPool is the subset of pgxpool.Pool the backend uses. pgxmock pools
// implement the same subset, which is what the tests inject.
type dbPool interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Close()
}

// PostgresBackend stores documents in a single shared table:
//
//	key TEXT PRIMARY KEY, value JSONB NOT NULL, updated_at TIMESTAMPTZ
//
// Every operation runs under a short timeout so a dead database turns into a
// prompt per-call failure instead of a hang. The table name is sanitized
// before it is interpolated; document keys and payloads always bind as
// placeholders.
type PostgresBackend struct {
	db     dbPool
	table  string
	logger *zap.SugaredLogger
}

// NewPostgresBackend opens a connection pool for the given URL. The pool
// connects lazily; call Bootstrap to verify connectivity and create the
// table.
func NewPostgresBackend(ctx context.Context, databaseURL string, table string) (*PostgresBackend, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	poolConfig.ConnConfig.ConnectTimeout = remoteConnectTimeout

	ctx, cancel := context.WithTimeout(ctx, remoteConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return newPostgresBackendWithDB(pool, table), nil
}

func newPostgresBackendWithDB(db dbPool, table string) *PostgresBackend {
	return &PostgresBackend{
		db:     db,
		table:  config.SanitizeTableName(table),
		logger: logger.For(logger.ComponentRemoteStore),
	}
}

// Table returns the sanitized table name in use.
func (b *PostgresBackend) Table() string {
	return b.table
}

func (b *PostgresBackend) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, remoteOperationTimeout)
}

// Bootstrap creates the document table if it does not exist.
func (b *PostgresBackend) Bootstrap(ctx context.Context) error {
	ctx, cancel := b.opContext(ctx)
	defer cancel()

	_, err := b.db.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
		  key TEXT PRIMARY KEY,
		  value JSONB NOT NULL,
		  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, b.table))
	if err != nil {
		return fmt.Errorf("failed to create document table %s: %w", b.table, err)
	}
	b.logger.Debugf("Document table %s ready", b.table)
	return nil
}

// Load reads the payload stored under key. A missing row is a miss, not an
// error.
func (b *PostgresBackend) Load(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := b.opContext(ctx)
	defer cancel()

	var raw []byte
	err := b.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT value FROM %s WHERE key = $1 LIMIT 1`, b.table), key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load document %s: %w", key, err)
	}
	return raw, true, nil
}

// Save upserts the payload for key and refreshes the row timestamp.
func (b *PostgresBackend) Save(ctx context.Context, key string, raw []byte) error {
	ctx, cancel := b.opContext(ctx)
	defer cancel()

	_, err := b.db.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (key, value, updated_at)
		VALUES ($1, $2::jsonb, NOW())
		ON CONFLICT (key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`, b.table),
		key, string(raw))
	if err != nil {
		return fmt.Errorf("failed to save document %s: %w", key, err)
	}
	return nil
}

// Seed inserts the payload only when no row exists for key.
func (b *PostgresBackend) Seed(ctx context.Context, key string, raw []byte) (bool, error) {
	ctx, cancel := b.opContext(ctx)
	defer cancel()

	tag, err := b.db.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (key, value, updated_at)
		VALUES ($1, $2::jsonb, NOW())
		ON CONFLICT (key)
		DO NOTHING`, b.table),
		key, string(raw))
	if err != nil {
		return false, fmt.Errorf("failed to seed document %s: %w", key, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Exists reports whether a row is stored under key.
func (b *PostgresBackend) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := b.opContext(ctx)
	defer cancel()

	var one int
	err := b.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT 1 FROM %s WHERE key = $1 LIMIT 1`, b.table), key).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check document %s: %w", key, err)
	}
	return true, nil
}

// Ping runs the connectivity probe used by the status panel.
func (b *PostgresBackend) Ping(ctx context.Context) error {
	ctx, cancel := b.opContext(ctx)
	defer cancel()

	var one int
	if err := b.db.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("connectivity probe failed: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (b *PostgresBackend) Close() {
	b.db.Close()
}

// IsConnectionFault reports whether err is a connection-class database fault
// (SQLSTATE class 08) or a plain network error.
func IsConnectionFault(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "08")
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
