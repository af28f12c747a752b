package receipts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/mirokugang/mukon/internal/common"
	"github.com/mirokugang/mukon/internal/dbx"
	"github.com/mirokugang/mukon/internal/identity"
	"github.com/mirokugang/mukon/internal/server/models"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, signature string) (*models.Receipt, error) {
	query, args, err := psql.Select("sequence", "signature", "signer", "operation", "error_code", "error_message", "processed_at").
		From("receipts").
		Where(sq.Eq{"signature": signature}).
		ToSql()
	if err != nil {
		return nil, err
	}

	rc := &models.Receipt{}
	var signer []byte
	var code int64
	err = r.db.QueryRowContext(ctx, query, args...).
		Scan(&rc.Sequence, &rc.Signature, &signer, &rc.Operation, &code, &rc.ErrMessage, &rc.ProcessedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if rc.Signer, err = identity.FromPublicKey(signer); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	rc.ErrCode = uint32(code)
	return rc, nil
}

func (r *PostgresRepository) Create(ctx context.Context, rc *models.Receipt) (*models.Receipt, error) {
	query, args, err := psql.Insert("receipts").
		Columns("signature", "signer", "operation", "error_code", "error_message").
		Values(rc.Signature, rc.Signer.Bytes(), rc.Operation, int64(rc.ErrCode), rc.ErrMessage).
		Suffix("RETURNING sequence, processed_at").
		ToSql()
	if err != nil {
		return nil, err
	}

	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&rc.Sequence, &rc.ProcessedAt); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rc, nil
}
