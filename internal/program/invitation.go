package program

import (
	"context"
	"fmt"

	"github.com/mirokugang/mukon/internal/address"
	"github.com/mirokugang/mukon/internal/identity"
)

// pair is the inviter/invitee view of one relationship, loaded from both
// directories. out is the inviter's entry, in the invitee's; either may be
// nil when the pair has no relationship yet.
type pair struct {
	inviterDir, inviteeDir *Directory
	out, in                *PeerEntry
}

func (p *Program) loadPair(ctx context.Context, st Store, inviter, invitee identity.Identity) (*pair, error) {
	a, err := loadDirectory(ctx, st, address.Directory(inviter, p.cfg.Version))
	if err != nil {
		return nil, err
	}
	b, err := loadDirectory(ctx, st, address.Directory(invitee, p.cfg.Version))
	if err != nil {
		return nil, err
	}

	pr := &pair{inviterDir: a, inviteeDir: b}
	if i := a.Find(invitee); i >= 0 {
		pr.out = &a.Entries[i]
	}
	if i := b.Find(inviter); i >= 0 {
		pr.in = &b.Entries[i]
	}

	// An entry without its mirror, or mirrors that disagree, can only come from
	// a broken write. Fail the operation rather than repair it.
	switch {
	case (pr.out == nil) != (pr.in == nil):
		return nil, fmt.Errorf("%w: %s/%s has one-sided entry", ErrInconsistent, inviter, invitee)
	case pr.out != nil && (pr.out.State != pr.in.State || pr.out.Direction != pr.in.Direction.Opposite()):
		return nil, fmt.Errorf("%w: %s/%s entries are %s/%s and %s/%s", ErrInconsistent, inviter, invitee,
			pr.out.State, pr.out.Direction, pr.in.State, pr.in.Direction)
	}
	return pr, nil
}

// pendingFrom reports whether the relationship is a pending invitation sent
// by the inviter side of the pair.
func (pr *pair) pendingFrom() bool {
	return pr.out != nil && pr.out.State == StatePending && pr.out.Direction == Outgoing
}

func (p *Program) savePair(ctx context.Context, st Store, inviter, invitee identity.Identity, pr *pair) error {
	if err := store(ctx, st, address.Directory(inviter, p.cfg.Version), KindDirectory, pr.inviterDir); err != nil {
		return err
	}
	return store(ctx, st, address.Directory(invitee, p.cfg.Version), KindDirectory, pr.inviteeDir)
}

func (p *Program) invite(ctx context.Context, st Store, inv Invocation) error {
	ix := inv.Instruction
	d := newDecoder(ix.Data)
	invitee := d.id()
	if err := d.finish(); err != nil {
		return err
	}
	inviter := inv.Signer
	if inviter == invitee {
		return fmt.Errorf("%w: cannot invite self", ErrValidation)
	}
	if err := expectAccounts(ix,
		address.Directory(inviter, p.cfg.Version),
		address.Directory(invitee, p.cfg.Version),
	); err != nil {
		return err
	}

	pr, err := p.loadPair(ctx, st, inviter, invitee)
	if err != nil {
		return err
	}

	if pr.out != nil {
		if pr.out.State != StateRejected {
			return ErrDuplicatePeer
		}
		if !p.cfg.AllowReinvite {
			return fmt.Errorf("%w: pair was rejected", ErrInvalidState)
		}
		*pr.out = PeerEntry{Peer: invitee, State: StatePending, Direction: Outgoing}
		*pr.in = PeerEntry{Peer: inviter, State: StatePending, Direction: Incoming}
		return p.savePair(ctx, st, inviter, invitee, pr)
	}

	if pr.inviterDir.Full() || pr.inviteeDir.Full() {
		return ErrCapacityExceeded
	}
	if err := pr.inviterDir.Append(PeerEntry{Peer: invitee, State: StatePending, Direction: Outgoing}); err != nil {
		return err
	}
	if err := pr.inviteeDir.Append(PeerEntry{Peer: inviter, State: StatePending, Direction: Incoming}); err != nil {
		return err
	}
	return p.savePair(ctx, st, inviter, invitee, pr)
}

// decodeResponse reads the inviter argument shared by accept and reject.
func (p *Program) decodeResponse(inv Invocation) (identity.Identity, error) {
	d := newDecoder(inv.Instruction.Data)
	inviter := d.id()
	if err := d.finish(); err != nil {
		return inviter, err
	}
	if inviter == inv.Signer {
		return inviter, fmt.Errorf("%w: cannot respond to self", ErrValidation)
	}
	return inviter, nil
}

func (p *Program) accept(ctx context.Context, st Store, inv Invocation) error {
	inviter, err := p.decodeResponse(inv)
	if err != nil {
		return err
	}
	invitee := inv.Signer
	handle := address.Conversation(inviter, invitee, p.cfg.Version)

	if err := expectAccounts(inv.Instruction,
		address.Directory(invitee, p.cfg.Version),
		address.Directory(inviter, p.cfg.Version),
		handle,
	); err != nil {
		return err
	}

	pr, err := p.loadPair(ctx, st, inviter, invitee)
	if err != nil {
		return err
	}
	if !pr.pendingFrom() {
		return fmt.Errorf("%w: no pending invitation from %s", ErrInvalidState, inviter)
	}

	active, err := exists(ctx, st, handle)
	if err != nil {
		return err
	}
	if active {
		return ErrAlreadyActive
	}

	pr.out.State = StateActive
	pr.in.State = StateActive
	if err := p.savePair(ctx, st, inviter, invitee, pr); err != nil {
		return err
	}

	lo, hi := address.Sort(inviter, invitee)
	conv := &Conversation{
		Version:      p.cfg.Version,
		ParticipantA: lo,
		ParticipantB: hi,
		Initiator:    inviter,
		CreatedAt:    inv.Now.Unix(),
	}
	return store(ctx, st, handle, KindConversation, conv)
}

func (p *Program) reject(ctx context.Context, st Store, inv Invocation) error {
	inviter, err := p.decodeResponse(inv)
	if err != nil {
		return err
	}
	invitee := inv.Signer

	if err := expectAccounts(inv.Instruction,
		address.Directory(invitee, p.cfg.Version),
		address.Directory(inviter, p.cfg.Version),
	); err != nil {
		return err
	}

	pr, err := p.loadPair(ctx, st, inviter, invitee)
	if err != nil {
		return err
	}
	if !pr.pendingFrom() {
		return fmt.Errorf("%w: no pending invitation from %s", ErrInvalidState, inviter)
	}

	pr.out.State = StateRejected
	pr.in.State = StateRejected
	return p.savePair(ctx, st, inviter, invitee, pr)
}
