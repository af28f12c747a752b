// Package program is the ledger-side state machine: the identity registry,
// the bounded peer directories and the invitation flow that creates
// conversation records.
//
// The program is deterministic and keeps no state of its own. The host ledger
// hands it a Store scoped to one atomic apply; if Execute returns an error
// the host discards every write made through that Store.
package program

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mirokugang/mukon/internal/address"
	"github.com/mirokugang/mukon/internal/common"
	"github.com/mirokugang/mukon/internal/identity"
	"github.com/mirokugang/mukon/internal/optag"
)

// Store is the account view of a single atomic apply.
type Store interface {
	// Get returns common.ErrorNotFound for absent accounts.
	Get(ctx context.Context, addr address.Address) (*Account, error)
	Put(ctx context.Context, acc *Account) error
}

// Config fixes program-wide parameters.
type Config struct {
	// Version is the schema version salted into every derived address.
	Version uint8
	// DirectoryCapacity is the capacity given to directories at register.
	DirectoryCapacity uint16
	// AllowReinvite lets a Rejected pair be invited again.
	AllowReinvite bool
}

func DefaultConfig() Config {
	return Config{
		Version:           address.CurrentVersion,
		DirectoryCapacity: 16,
	}
}

// Invocation is a verified request: the signature over it has already been
// checked by the host, so Signer is authentic.
type Invocation struct {
	Signer      identity.Identity
	Instruction Instruction
	Now         time.Time
}

type handler func(ctx context.Context, st Store, inv Invocation) error

type Program struct {
	cfg      Config
	handlers map[optag.Tag]handler
}

func New(cfg Config) *Program {
	p := &Program{cfg: cfg}
	p.handlers = map[optag.Tag]handler{
		optag.MustLookup(optag.Register):      p.register,
		optag.MustLookup(optag.UpdateProfile): p.updateProfile,
		optag.MustLookup(optag.Invite):        p.invite,
		optag.MustLookup(optag.Accept):        p.accept,
		optag.MustLookup(optag.Reject):        p.reject,
	}
	return p
}

func (p *Program) Config() Config {
	return p.cfg
}

// Execute dispatches inv to the handler selected by its operation tag.
func (p *Program) Execute(ctx context.Context, st Store, inv Invocation) error {
	tag, err := inv.Instruction.Tag()
	if err != nil {
		return err
	}
	h, ok := p.handlers[tag]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOperation, tag)
	}
	return h(ctx, st, inv)
}

// ---- helpers ----

func expectAccounts(ix Instruction, want ...address.Address) error {
	if len(ix.Accounts) != len(want) {
		return fmt.Errorf("%w: got %d accounts, want %d", ErrInvalidAccount, len(ix.Accounts), len(want))
	}
	for i := range want {
		if ix.Accounts[i] != want[i] {
			return fmt.Errorf("%w: account %d is %s, want %s", ErrInvalidAccount, i, ix.Accounts[i], want[i])
		}
	}
	return nil
}

func exists(ctx context.Context, st Store, addr address.Address) (bool, error) {
	_, err := st.Get(ctx, addr)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, common.ErrorNotFound):
		return false, nil
	}
	return false, err
}

func loadProfile(ctx context.Context, st Store, addr address.Address) (*Profile, error) {
	acc, err := st.Get(ctx, addr)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("%w: profile %s", ErrNotRegistered, addr)
		}
		return nil, err
	}
	return DecodeProfile(acc.Data)
}

func loadDirectory(ctx context.Context, st Store, addr address.Address) (*Directory, error) {
	acc, err := st.Get(ctx, addr)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("%w: directory %s", ErrNotRegistered, addr)
		}
		return nil, err
	}
	return DecodeDirectory(acc.Data)
}

type marshaler interface {
	MarshalBinary() ([]byte, error)
}

func store(ctx context.Context, st Store, addr address.Address, kind Kind, v marshaler) error {
	data, err := v.MarshalBinary()
	if err != nil {
		return err
	}
	return st.Put(ctx, &Account{Address: addr, Kind: kind, Data: data})
}
