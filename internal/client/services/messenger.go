// Package services contains application services for the mukon client.
// This file defines the Messenger, which turns user intents (register,
// invite, accept, ...) into signed ledger transactions and keeps the local
// contacts cache in step with the ledger.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mirokugang/mukon/internal/address"
	"github.com/mirokugang/mukon/internal/client/client"
	"github.com/mirokugang/mukon/internal/client/repositories/contacts"
	"github.com/mirokugang/mukon/internal/common"
	"github.com/mirokugang/mukon/internal/identity"
	"github.com/mirokugang/mukon/internal/logging"
	"github.com/mirokugang/mukon/internal/program"
	"github.com/mirokugang/mukon/internal/txn"
)

// NonceSource hands out transaction nonces for an identity.
type NonceSource interface {
	NextNonce(id identity.Identity) (uint64, error)
}

// ClockNonces uses the wall clock; fine for one process per identity.
type ClockNonces struct{}

func (ClockNonces) NextNonce(identity.Identity) (uint64, error) {
	return uint64(time.Now().UnixNano()), nil
}

type Messenger struct {
	client   client.Client
	keys     *identity.KeyPair
	nonces   NonceSource
	contacts contacts.Repository
	version  uint8
	logger   logging.Logger
}

// NewMessenger binds a key pair to a ledger client. contacts may be nil, in
// which case nothing is cached.
func NewMessenger(c client.Client, keys *identity.KeyPair, nonces NonceSource, cache contacts.Repository, version uint8, l logging.Logger) *Messenger {
	if nonces == nil {
		nonces = ClockNonces{}
	}
	return &Messenger{
		client:   c,
		keys:     keys,
		nonces:   nonces,
		contacts: cache,
		version:  version,
		logger:   l.With("module", "messenger"),
	}
}

func (m *Messenger) Identity() identity.Identity {
	return m.keys.Identity()
}

// Handle is the conversation handle shared with peer.
func (m *Messenger) Handle(peer identity.Identity) address.Handle {
	return address.Conversation(m.Identity(), peer, m.version)
}

func (m *Messenger) Register(ctx context.Context, displayName string) (*client.Receipt, error) {
	return m.submit(ctx, program.NewRegister(m.Identity(), m.version, displayName))
}

// UpdateProfile changes the display name and, when avatar is non-nil, the
// avatar reference.
func (m *Messenger) UpdateProfile(ctx context.Context, displayName string, avatar *string) (*client.Receipt, error) {
	return m.submit(ctx, program.NewUpdateProfile(m.Identity(), m.version, displayName, avatar))
}

func (m *Messenger) Invite(ctx context.Context, peer identity.Identity) (*client.Receipt, error) {
	return m.submit(ctx, program.NewInvite(m.Identity(), peer, m.version))
}

func (m *Messenger) Accept(ctx context.Context, inviter identity.Identity) (*client.Receipt, error) {
	return m.submit(ctx, program.NewAccept(m.Identity(), inviter, m.version))
}

func (m *Messenger) Reject(ctx context.Context, inviter identity.Identity) (*client.Receipt, error) {
	return m.submit(ctx, program.NewReject(m.Identity(), inviter, m.version))
}

// submit signs ix once; retries inside the client resend the same payload.
func (m *Messenger) submit(ctx context.Context, ix program.Instruction) (*client.Receipt, error) {
	op, err := ix.Operation()
	if err != nil {
		return nil, err
	}

	nonce, err := m.nonces.NextNonce(m.Identity())
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}

	tx := txn.New(m.Identity(), nonce, ix)
	if err := tx.Sign(m.keys); err != nil {
		return nil, err
	}

	rc, err := m.client.Submit(ctx, tx)
	if err != nil {
		m.logger.Warn(ctx, "submission failed", "operation", op, "signature", tx.ID(), "error", err)
		return nil, err
	}
	m.logger.Info(ctx, "submitted", "operation", op, "signature", rc.Signature, "sequence", rc.Sequence)
	return rc, nil
}

func (m *Messenger) Profile(ctx context.Context, id identity.Identity) (*program.Profile, error) {
	return m.client.Profile(ctx, id)
}

// Contacts lists the peer directory joined with peer profiles. Online, it
// reads the ledger and refreshes the cache; offline, it serves the cache.
func (m *Messenger) Contacts(ctx context.Context, offline bool) ([]contacts.Contact, error) {
	if offline {
		if m.contacts == nil {
			return nil, client.ErrLocalDataNotAvailable
		}
		return m.contacts.List(ctx)
	}

	dir, err := m.client.Directory(ctx, m.Identity())
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	result := make([]contacts.Contact, 0, len(dir.Entries))
	for _, e := range dir.Entries {
		c := contacts.Contact{
			Identity:  e.Peer,
			State:     e.State.String(),
			Direction: e.Direction.String(),
			Handle:    m.Handle(e.Peer),
			UpdatedAt: now,
		}
		p, err := m.client.Profile(ctx, e.Peer)
		switch {
		case err == nil:
			c.DisplayName = p.DisplayName
			c.AvatarURI = p.AvatarURI
		case !errors.Is(err, common.ErrorNotFound):
			return nil, err
		}
		result = append(result, c)
	}

	if m.contacts != nil {
		if err := m.contacts.Replace(ctx, result); err != nil {
			m.logger.Warn(ctx, "contacts cache not updated", "error", err)
		}
	}
	return result, nil
}
