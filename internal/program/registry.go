package program

import (
	"context"

	"github.com/mirokugang/mukon/internal/address"
)

func (p *Program) register(ctx context.Context, st Store, inv Invocation) error {
	ix := inv.Instruction
	d := newDecoder(ix.Data)
	name := d.str(MaxDisplayNameLen)
	if err := d.finish(); err != nil {
		return err
	}
	if err := validateText("display name", name, MaxDisplayNameLen, false); err != nil {
		return err
	}

	profileAddr := address.Profile(inv.Signer, p.cfg.Version)
	dirAddr := address.Directory(inv.Signer, p.cfg.Version)
	if err := expectAccounts(ix, profileAddr, dirAddr); err != nil {
		return err
	}

	for _, addr := range []address.Address{profileAddr, dirAddr} {
		ok, err := exists(ctx, st, addr)
		if err != nil {
			return err
		}
		if ok {
			return ErrAlreadyRegistered
		}
	}

	profile := &Profile{Version: p.cfg.Version, Owner: inv.Signer, DisplayName: name}
	if err := store(ctx, st, profileAddr, KindProfile, profile); err != nil {
		return err
	}
	dir := &Directory{Version: p.cfg.Version, Owner: inv.Signer, Capacity: p.cfg.DirectoryCapacity}
	return store(ctx, st, dirAddr, KindDirectory, dir)
}

func (p *Program) updateProfile(ctx context.Context, st Store, inv Invocation) error {
	ix := inv.Instruction
	d := newDecoder(ix.Data)
	name := d.str(MaxDisplayNameLen)
	avatar := d.optStr(MaxAvatarLen)
	if err := d.finish(); err != nil {
		return err
	}
	if len(ix.Accounts) != 1 {
		return ErrInvalidAccount
	}

	profile, err := loadProfile(ctx, st, ix.Accounts[0])
	if err != nil {
		return err
	}
	if profile.Owner != inv.Signer {
		return ErrUnauthorized
	}

	profile.DisplayName = name
	if avatar != nil {
		profile.AvatarURI = *avatar
	}
	return store(ctx, st, ix.Accounts[0], KindProfile, profile)
}
