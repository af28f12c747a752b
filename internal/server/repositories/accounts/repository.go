// Package accounts stores raw ledger accounts.
package accounts

import (
	"context"

	"github.com/mirokugang/mukon/internal/address"
	"github.com/mirokugang/mukon/internal/program"
)

type Repository interface {
	// Lock serializes the calling transaction against every other transaction
	// locking any of keys, until commit or rollback.
	Lock(ctx context.Context, keys []address.Address) error
	// Get returns common.ErrorNotFound for absent accounts.
	Get(ctx context.Context, addr address.Address) (*program.Account, error)
	Upsert(ctx context.Context, acc *program.Account) error
}
