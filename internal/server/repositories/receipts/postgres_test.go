package receipts

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mirokugang/mukon/internal/common"
	"github.com/mirokugang/mukon/internal/identity"
	"github.com/mirokugang/mukon/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock
}

func TestCreate(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	kp, err := identity.Generate()
	require.NoError(t, err)
	now := time.Now()

	mock.ExpectQuery(`(?s)^INSERT INTO receipts \(signature,signer,operation,error_code,error_message\) VALUES \(\$1,\$2,\$3,\$4,\$5\) RETURNING sequence, processed_at$`).
		WithArgs("sig", kp.Identity().Bytes(), "invite", int64(6003), "DuplicatePeer").
		WillReturnRows(sqlmock.NewRows([]string{"sequence", "processed_at"}).AddRow(int64(9), now))

	rc, err := repo.Create(context.Background(), &models.Receipt{
		Signature:  "sig",
		Signer:     kp.Identity(),
		Operation:  "invite",
		ErrCode:    6003,
		ErrMessage: "DuplicatePeer",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(9), rc.Sequence)
	assert.Equal(t, now, rc.ProcessedAt)
	assert.True(t, rc.Failed())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	kp, err := identity.Generate()
	require.NoError(t, err)
	now := time.Now()

	mock.ExpectQuery(`(?s)^SELECT sequence, signature, signer, operation, error_code, error_message, processed_at FROM receipts WHERE signature = \$1$`).
		WithArgs("sig").
		WillReturnRows(sqlmock.NewRows([]string{"sequence", "signature", "signer", "operation", "error_code", "error_message", "processed_at"}).
			AddRow(int64(3), "sig", kp.Identity().Bytes(), "register", int64(0), "", now))

	rc, err := repo.Get(context.Background(), "sig")
	require.NoError(t, err)
	assert.Equal(t, int64(3), rc.Sequence)
	assert.Equal(t, kp.Identity(), rc.Signer)
	assert.False(t, rc.Failed())
}

func TestGet_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`FROM receipts`).WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "sig")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestGet_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`FROM receipts`).WillReturnError(errors.New("db down"))

	_, err := repo.Get(context.Background(), "sig")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}
