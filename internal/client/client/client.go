package client

import (
	"context"

	"github.com/mirokugang/mukon/internal/address"
	"github.com/mirokugang/mukon/internal/identity"
	"github.com/mirokugang/mukon/internal/program"
	"github.com/mirokugang/mukon/internal/txn"
)

// Receipt acknowledges an applied transaction.
type Receipt struct {
	Signature string
	Sequence  int64
}

type Client interface {
	Close() error
	Ping(ctx context.Context) error
	// Submit blocks until the ledger answers. Transient failures are retried
	// with the identical signed payload.
	Submit(ctx context.Context, tx *txn.Transaction) (*Receipt, error)
	Account(ctx context.Context, addr address.Address) (*program.Account, error)
	Profile(ctx context.Context, id identity.Identity) (*program.Profile, error)
	Directory(ctx context.Context, id identity.Identity) (*program.Directory, error)
	Conversation(ctx context.Context, handle address.Handle) (*program.Conversation, error)
}
