package repomanager

import (
	"context"

	"github.com/mirokugang/mukon/internal/server/repositories/accounts"
	"github.com/mirokugang/mukon/internal/server/repositories/receipts"
)

// Repositories is a set of repositories bound to one connection or
// transaction.
type Repositories struct {
	Accounts accounts.Repository
	Receipts receipts.Repository
}

type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	// Read returns repositories outside any transaction.
	Read() Repositories
	// InTx runs fn in one atomic unit: everything written through the given
	// repositories commits if fn returns nil and is discarded otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error
	Close() error
}
