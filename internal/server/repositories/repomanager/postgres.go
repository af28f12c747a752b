// Package repomanager vends the account and receipt repositories of the ledger
// node, backed either by PostgreSQL (with goose migrations) or by memory.
package repomanager

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mirokugang/mukon/internal/dbx"
	"github.com/mirokugang/mukon/internal/server/migrations"
	"github.com/mirokugang/mukon/internal/server/repositories/accounts"
	"github.com/mirokugang/mukon/internal/server/repositories/receipts"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager binds repositories to a *sql.DB or to the
// transaction opened by InTx.
type PostgresRepositoryManager struct {
	db *sql.DB
}

// OpenPostgres connects through the pgx stdlib driver and verifies the
// connection.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func NewPostgresRepositoryManager(db *sql.DB) *PostgresRepositoryManager {
	return &PostgresRepositoryManager{db: db}
}

func bind(db dbx.DBTX) Repositories {
	return Repositories{
		Accounts: accounts.NewPostgresRepository(db),
		Receipts: receipts.NewPostgresRepository(db),
	}
}

func (m *PostgresRepositoryManager) Read() Repositories {
	return bind(m.db)
}

// txAttempts bounds how often a conflicting transaction is replayed.
const txAttempts = 5

// InTx runs fn under READ COMMITTED. Writers serialize on the advisory locks
// taken through Accounts.Lock, and every statement after the lock sees the
// committed state. A transaction PostgreSQL aborts as a deadlock or
// serialization victim is replayed.
func (m *PostgresRepositoryManager) InTx(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error {
	opts := &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	return dbx.WithRetryTx(ctx, m.db, opts, txAttempts, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, bind(tx))
	})
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded migrations.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, m.db, ".")
}

func (m *PostgresRepositoryManager) Close() error {
	return m.db.Close()
}
