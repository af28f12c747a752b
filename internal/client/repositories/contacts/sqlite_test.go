package contacts

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/mirokugang/mukon/internal/address"
	"github.com/mirokugang/mukon/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE contacts (
    identity     TEXT PRIMARY KEY,
    display_name TEXT NOT NULL DEFAULT '',
    avatar_uri   TEXT NOT NULL DEFAULT '',
    state        TEXT NOT NULL,
    direction    TEXT NOT NULL,
    handle       TEXT NOT NULL,
    updated_at   INTEGER NOT NULL
);`)
	require.NoError(t, err)
	return db
}

func newContact(t *testing.T, self identity.Identity, name string) Contact {
	t.Helper()
	kp, err := identity.Generate()
	require.NoError(t, err)
	return Contact{
		Identity:    kp.Identity(),
		DisplayName: name,
		State:       "Pending",
		Direction:   "Outgoing",
		Handle:      address.Conversation(self, kp.Identity(), address.CurrentVersion),
		UpdatedAt:   time.Unix(1700000000, 0).UTC(),
	}
}

func TestReplaceAndList(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	self, err := identity.Generate()
	require.NoError(t, err)
	bob := newContact(t, self.Identity(), "bob")
	carol := newContact(t, self.Identity(), "carol")

	require.NoError(t, r.Replace(ctx, []Contact{carol, bob}))

	got, err := r.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Contact{bob, carol}, got)

	// replacing drops entries no longer present
	require.NoError(t, r.Replace(ctx, []Contact{carol}))
	got, err = r.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Contact{carol}, got)
}

func TestGet(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	self, err := identity.Generate()
	require.NoError(t, err)
	bob := newContact(t, self.Identity(), "bob")
	require.NoError(t, r.Replace(ctx, []Contact{bob}))

	got, err := r.Get(ctx, bob.Identity)
	require.NoError(t, err)
	assert.Equal(t, &bob, got)

	missing, err := r.Get(ctx, self.Identity())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestReplaceEmptyAndClear(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	self, err := identity.Generate()
	require.NoError(t, err)
	require.NoError(t, r.Replace(ctx, []Contact{newContact(t, self.Identity(), "bob")}))
	require.NoError(t, r.Replace(ctx, nil))

	got, err := r.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, r.Replace(ctx, []Contact{newContact(t, self.Identity(), "bob")}))
	require.NoError(t, r.Clear(ctx))
	got, err = r.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}
