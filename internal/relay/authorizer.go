package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/mirokugang/mukon/internal/address"
	"github.com/mirokugang/mukon/internal/common"
	"github.com/mirokugang/mukon/internal/identity"
	"github.com/mirokugang/mukon/internal/program"
)

// Authorizer decides whether self may join handle. peer is the optional
// counterpart named by the client.
type Authorizer interface {
	Authorize(ctx context.Context, handle address.Handle, self identity.Identity, peer *identity.Identity) error
}

// ConversationReader reads conversation accounts from the ledger.
type ConversationReader interface {
	Conversation(ctx context.Context, handle address.Handle) (*program.Conversation, error)
}

// LedgerAuthorizer admits participants recorded in the Conversation account
// at handle. Handles with no account are forbidden.
type LedgerAuthorizer struct {
	reader ConversationReader
}

func NewLedgerAuthorizer(r ConversationReader) *LedgerAuthorizer {
	return &LedgerAuthorizer{reader: r}
}

func (a *LedgerAuthorizer) Authorize(ctx context.Context, handle address.Handle, self identity.Identity, _ *identity.Identity) error {
	conv, err := a.reader.Conversation(ctx, handle)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return ErrForbidden
		}
		return fmt.Errorf("%w: conversation lookup: %v", ErrForbidden, err)
	}
	if !conv.HasParticipant(self) {
		return ErrForbidden
	}
	return nil
}

// DerivedAuthorizer admits self when handle is the handle derived for
// (self, peer). It needs no ledger access but requires the peer.
type DerivedAuthorizer struct {
	version uint8
}

func NewDerivedAuthorizer(version uint8) *DerivedAuthorizer {
	return &DerivedAuthorizer{version: version}
}

func (a *DerivedAuthorizer) Authorize(_ context.Context, handle address.Handle, self identity.Identity, peer *identity.Identity) error {
	if peer == nil {
		return &Error{Code: CodeBadRequest, msg: "peer is required"}
	}
	if !address.IsParticipant(handle, self, *peer, a.version) {
		return ErrForbidden
	}
	return nil
}
