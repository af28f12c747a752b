package dbx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	db.SetMaxOpenConns(4)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`CREATE TABLE contacts (handle TEXT PRIMARY KEY, state TEXT NOT NULL)`)
	require.NoError(t, err)
	return db
}

func countRows(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM contacts`).Scan(&n))
	return n
}

func insert(handle string) TxFunc {
	return func(ctx context.Context, tx DBTX) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO contacts(handle, state) VALUES (?, 'Pending')`, handle)
		return err
	}
}

func noWait(t *testing.T) {
	t.Helper()
	prev := retryBackOff
	retryBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	t.Cleanup(func() { retryBackOff = prev })
}

func TestWithTx_Commits(t *testing.T) {
	db := setupDB(t)

	require.NoError(t, WithTx(context.Background(), db, nil, insert("a")))
	assert.Equal(t, 1, countRows(t, db))
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	db := setupDB(t)
	boom := errors.New("boom")

	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		require.NoError(t, insert("a")(ctx, tx))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, countRows(t, db))
}

func TestWithTx_RollsBackOnPanic(t *testing.T) {
	db := setupDB(t)

	assert.PanicsWithValue(t, "kaput", func() {
		_ = WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
			require.NoError(t, insert("a")(ctx, tx))
			panic("kaput")
		})
	})
	assert.Equal(t, 0, countRows(t, db))
}

func TestWithTx_BeginError(t *testing.T) {
	db := setupDB(t)
	require.NoError(t, db.Close())

	err := WithTx(context.Background(), db, nil, func(context.Context, DBTX) error { return nil })
	assert.Error(t, err)
}

func TestIsConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"serialization", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "40P01"}), true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"plain", errors.New("x"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsConflict(tt.err))
		})
	}
}

func TestWithRetryTx_ReplaysConflicts(t *testing.T) {
	noWait(t)
	db := setupDB(t)

	runs := 0
	err := WithRetryTx(context.Background(), db, nil, 3, func(ctx context.Context, tx DBTX) error {
		runs++
		if err := insert("a")(ctx, tx); err != nil {
			return err
		}
		if runs < 3 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, runs)
	assert.Equal(t, 1, countRows(t, db), "earlier runs must have rolled back")
}

func TestWithRetryTx_GivesUp(t *testing.T) {
	noWait(t)
	db := setupDB(t)

	runs := 0
	err := WithRetryTx(context.Background(), db, nil, 2, func(context.Context, DBTX) error {
		runs++
		return &pgconn.PgError{Code: "40P01"}
	})
	assert.True(t, IsConflict(err))
	assert.Equal(t, 2, runs)
}

func TestWithRetryTx_OtherErrorsAreFinal(t *testing.T) {
	noWait(t)
	db := setupDB(t)
	boom := errors.New("boom")

	runs := 0
	err := WithRetryTx(context.Background(), db, nil, 5, func(context.Context, DBTX) error {
		runs++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, runs)
}

func TestWithRetryTx_ZeroAttemptsRunsOnce(t *testing.T) {
	noWait(t)
	db := setupDB(t)

	require.NoError(t, WithRetryTx(context.Background(), db, nil, 0, insert("a")))
	assert.Equal(t, 1, countRows(t, db))
}
