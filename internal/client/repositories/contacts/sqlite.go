package contacts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/mirokugang/mukon/internal/address"
	"github.com/mirokugang/mukon/internal/dbx"
	"github.com/mirokugang/mukon/internal/identity"
)

var columns = []string{"identity", "display_name", "avatar_uri", "state", "direction", "handle", "updated_at"}

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Replace(ctx context.Context, cs []Contact) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM contacts`); err != nil {
			return fmt.Errorf("failed to clear contacts: %w", err)
		}
		if len(cs) == 0 {
			return nil
		}

		ins := sq.Insert("contacts").Columns(columns...)
		for _, c := range cs {
			ins = ins.Values(c.Identity.String(), c.DisplayName, c.AvatarURI, c.State, c.Direction, c.Handle.String(), c.UpdatedAt.Unix())
		}
		query, args, err := ins.ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to store contacts: %w", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) List(ctx context.Context) ([]Contact, error) {
	query, args, err := sq.Select(columns...).From("contacts").OrderBy("display_name", "identity").ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	defer rows.Close()

	var result []Contact
	for rows.Next() {
		c, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}

func (r *SQLiteRepository) Get(ctx context.Context, id identity.Identity) (*Contact, error) {
	query, args, err := sq.Select(columns...).From("contacts").Where(sq.Eq{"identity": id.String()}).ToSql()
	if err != nil {
		return nil, err
	}

	c, err := scan(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM contacts`)
	if err != nil {
		return fmt.Errorf("failed to clear contacts: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*Contact, error) {
	var (
		c             Contact
		id, handle    string
		updatedAtUnix int64
	)
	if err := s.Scan(&id, &c.DisplayName, &c.AvatarURI, &c.State, &c.Direction, &handle, &updatedAtUnix); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read contact: %w", err)
	}

	var err error
	if c.Identity, err = identity.Parse(id); err != nil {
		return nil, err
	}
	if c.Handle, err = address.Parse(handle); err != nil {
		return nil, err
	}
	c.UpdatedAt = time.Unix(updatedAtUnix, 0).UTC()
	return &c, nil
}
