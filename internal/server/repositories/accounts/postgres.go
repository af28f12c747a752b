package accounts

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	sq "github.com/Masterminds/squirrel"
	"github.com/mirokugang/mukon/internal/address"
	"github.com/mirokugang/mukon/internal/common"
	"github.com/mirokugang/mukon/internal/dbx"
	"github.com/mirokugang/mukon/internal/program"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Lock takes transaction-scoped advisory locks in ascending key order, so two
// transactions touching overlapping accounts cannot deadlock.
func (r *PostgresRepository) Lock(ctx context.Context, keys []address.Address) error {
	sorted := append([]address.Address(nil), keys...)
	sort.Slice(sorted, func(i, j int) bool { return bytes.Compare(sorted[i][:], sorted[j][:]) < 0 })

	var prev *address.Address
	for i := range sorted {
		if prev != nil && *prev == sorted[i] {
			continue
		}
		prev = &sorted[i]
		key := int64(binary.BigEndian.Uint64(sorted[i][:8]))
		if _, err := r.db.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, key); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, addr address.Address) (*program.Account, error) {
	query, args, err := psql.Select("kind", "data").
		From("accounts").
		Where(sq.Eq{"address": addr[:]}).
		ToSql()
	if err != nil {
		return nil, err
	}

	acc := &program.Account{Address: addr}
	var kind int16
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&kind, &acc.Data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	acc.Kind = program.Kind(kind)
	return acc, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, acc *program.Account) error {
	query, args, err := psql.Insert("accounts").
		Columns("address", "kind", "data", "updated_at").
		Values(acc.Address[:], int16(acc.Kind), acc.Data, sq.Expr("now()")).
		Suffix("ON CONFLICT (address) DO UPDATE SET kind = EXCLUDED.kind, data = EXCLUDED.data, updated_at = now()").
		ToSql()
	if err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
