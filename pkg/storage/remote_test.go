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
	"net"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockedBackend(t *testing.T) (*PostgresBackend, pgxmock.PgxPoolIface) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("Failed to create mock pool: %v", err)
	}
	return newPostgresBackendWithDB(mock, "aura_state"), mock
}

func TestPostgresBackendSanitizesTableName(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	backend := newPostgresBackendWithDB(mock, "bad-table; DROP TABLE users")
	assert.Equal(t, "aura_state", backend.Table())
}

func TestPostgresBackendBootstrap(t *testing.T) {
	backend, mock := newMockedBackend(t)
	defer mock.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS aura_state`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, backend.Bootstrap(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBackendLoad(t *testing.T) {
	backend, mock := newMockedBackend(t)
	defer mock.Close()

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT value FROM aura_state WHERE key = \$1 LIMIT 1`).
			WithArgs("events").
			WillReturnRows(mock.NewRows([]string{"value"}).AddRow([]byte(`{"title":"open gym"}`)))

		raw, found, err := backend.Load(context.Background(), "events")
		require.NoError(t, err)
		assert.True(t, found)
		assert.JSONEq(t, `{"title":"open gym"}`, string(raw))
	})

	t.Run("missing row is a miss", func(t *testing.T) {
		mock.ExpectQuery(`SELECT value FROM aura_state WHERE key = \$1 LIMIT 1`).
			WithArgs("unknown").
			WillReturnError(pgx.ErrNoRows)

		raw, found, err := backend.Load(context.Background(), "unknown")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, raw)
	})

	t.Run("query failure propagates", func(t *testing.T) {
		mock.ExpectQuery(`SELECT value FROM aura_state WHERE key = \$1 LIMIT 1`).
			WithArgs("events").
			WillReturnError(errors.New("connection refused"))

		_, _, err := backend.Load(context.Background(), "events")
		assert.Error(t, err)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBackendSave(t *testing.T) {
	backend, mock := newMockedBackend(t)
	defer mock.Close()

	mock.ExpectExec(`DO UPDATE SET value = EXCLUDED.value, updated_at = NOW\(\)`).
		WithArgs("events", `{"title":"open gym"}`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := backend.Save(context.Background(), "events", []byte(`{"title":"open gym"}`))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBackendSeed(t *testing.T) {
	backend, mock := newMockedBackend(t)
	defer mock.Close()

	t.Run("inserts when absent", func(t *testing.T) {
		mock.ExpectExec(`DO NOTHING`).
			WithArgs("settings", `{"v":1}`).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		inserted, err := backend.Seed(context.Background(), "settings", []byte(`{"v":1}`))
		require.NoError(t, err)
		assert.True(t, inserted)
	})

	t.Run("leaves existing rows alone", func(t *testing.T) {
		mock.ExpectExec(`DO NOTHING`).
			WithArgs("settings", `{"v":2}`).
			WillReturnResult(pgxmock.NewResult("INSERT", 0))

		inserted, err := backend.Seed(context.Background(), "settings", []byte(`{"v":2}`))
		require.NoError(t, err)
		assert.False(t, inserted, "conflicting seeds do not overwrite")
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBackendExists(t *testing.T) {
	backend, mock := newMockedBackend(t)
	defer mock.Close()

	mock.ExpectQuery(`SELECT 1 FROM aura_state WHERE key = \$1 LIMIT 1`).
		WithArgs("events").
		WillReturnRows(mock.NewRows([]string{"?column?"}).AddRow(1))

	found, err := backend.Exists(context.Background(), "events")
	require.NoError(t, err)
	assert.True(t, found)

	mock.ExpectQuery(`SELECT 1 FROM aura_state WHERE key = \$1 LIMIT 1`).
		WithArgs("unknown").
		WillReturnError(pgx.ErrNoRows)

	found, err = backend.Exists(context.Background(), "unknown")
	require.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsConnectionFault(t *testing.T) {
	assert.True(t, IsConnectionFault(&pgconn.PgError{Code: "08006"}), "connection_failure")
	assert.True(t, IsConnectionFault(&pgconn.PgError{Code: "08001"}), "sqlclient_unable_to_establish_sqlconnection")
	assert.False(t, IsConnectionFault(&pgconn.PgError{Code: "23505"}), "unique_violation is not a connectivity problem")
	assert.True(t, IsConnectionFault(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	assert.False(t, IsConnectionFault(errors.New("some application error")))
	assert.False(t, IsConnectionFault(nil))
}

func TestPostgresBackendPing(t *testing.T) {
	backend, mock := newMockedBackend(t)
	defer mock.Close()

	mock.ExpectQuery(`SELECT 1`).
		WillReturnRows(mock.NewRows([]string{"?column?"}).AddRow(1))

	require.NoError(t, backend.Ping(context.Background()))

	mock.ExpectQuery(`SELECT 1`).
		WillReturnError(errors.New("dial timeout"))

	assert.Error(t, backend.Ping(context.Background()))

	assert.NoError(t, mock.ExpectationsWereMet())
}
