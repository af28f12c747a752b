package program

import (
	"encoding/binary"
	"fmt"

	"github.com/mirokugang/mukon/internal/address"
	"github.com/mirokugang/mukon/internal/identity"
	"github.com/mirokugang/mukon/internal/optag"
)

// Instruction is one tagged program call: the accounts it touches and its
// encoded data (tag followed by arguments).
type Instruction struct {
	Accounts []address.Address `json:"accounts"`
	Data     []byte            `json:"data"`
}

// Tag returns the operation tag at the head of the data.
func (ix Instruction) Tag() (optag.Tag, error) {
	var t optag.Tag
	if len(ix.Data) < optag.Size {
		return t, fmt.Errorf("%w: data shorter than tag", ErrMalformedInstruction)
	}
	copy(t[:], ix.Data)
	return t, nil
}

// Operation resolves the tag to its canonical name.
func (ix Instruction) Operation() (string, error) {
	t, err := ix.Tag()
	if err != nil {
		return "", err
	}
	name, ok := optag.Name(t)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownOperation, t)
	}
	return name, nil
}

// NewRegister builds register(displayName) for signer.
func NewRegister(signer identity.Identity, version uint8, displayName string) Instruction {
	return Instruction{
		Accounts: []address.Address{
			address.Profile(signer, version),
			address.Directory(signer, version),
		},
		Data: newEncoder(optag.Register).str(displayName).bytes(),
	}
}

// NewUpdateProfile builds update_profile for the profile owned by owner. A nil
// avatar leaves the stored avatar reference unchanged.
func NewUpdateProfile(owner identity.Identity, version uint8, displayName string, avatar *string) Instruction {
	return Instruction{
		Accounts: []address.Address{address.Profile(owner, version)},
		Data:     newEncoder(optag.UpdateProfile).str(displayName).optStr(avatar).bytes(),
	}
}

// NewInvite builds invite(invitee) signed by inviter.
func NewInvite(inviter, invitee identity.Identity, version uint8) Instruction {
	return Instruction{
		Accounts: []address.Address{
			address.Directory(inviter, version),
			address.Directory(invitee, version),
		},
		Data: newEncoder(optag.Invite).id(invitee).bytes(),
	}
}

// NewAccept builds accept(inviter) signed by invitee.
func NewAccept(invitee, inviter identity.Identity, version uint8) Instruction {
	return Instruction{
		Accounts: []address.Address{
			address.Directory(invitee, version),
			address.Directory(inviter, version),
			address.Conversation(invitee, inviter, version),
		},
		Data: newEncoder(optag.Accept).id(inviter).bytes(),
	}
}

// NewReject builds reject(inviter) signed by invitee.
func NewReject(invitee, inviter identity.Identity, version uint8) Instruction {
	return Instruction{
		Accounts: []address.Address{
			address.Directory(invitee, version),
			address.Directory(inviter, version),
		},
		Data: newEncoder(optag.Reject).id(inviter).bytes(),
	}
}

// Arguments are little-endian: strings as u32 length + bytes, options as a
// one-byte flag followed by the value, identities as 32 raw bytes.
type encoder struct {
	buf []byte
}

func newEncoder(op string) *encoder {
	tag := optag.MustLookup(op)
	return &encoder{buf: append([]byte(nil), tag[:]...)}
}

func (e *encoder) str(s string) *encoder {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, uint32(len(s)))
	e.buf = append(e.buf, s...)
	return e
}

func (e *encoder) optStr(s *string) *encoder {
	if s == nil {
		e.buf = append(e.buf, 0)
		return e
	}
	e.buf = append(e.buf, 1)
	return e.str(*s)
}

func (e *encoder) id(id identity.Identity) *encoder {
	e.buf = append(e.buf, id[:]...)
	return e
}

func (e *encoder) bytes() []byte {
	return e.buf
}

type decoder struct {
	buf []byte
	err error
}

func newDecoder(data []byte) *decoder {
	return &decoder{buf: data[optag.Size:]}
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || len(d.buf) < n {
		d.err = fmt.Errorf("%w: truncated arguments", ErrMalformedInstruction)
		return nil
	}
	b := d.buf[:n]
	d.buf = d.buf[n:]
	return b
}

func (d *decoder) str(max int) string {
	lb := d.take(4)
	if d.err != nil {
		return ""
	}
	n := binary.LittleEndian.Uint32(lb)
	if n > uint32(max) {
		d.err = fmt.Errorf("%w: string is %d bytes, max %d", ErrValidation, n, max)
		return ""
	}
	return string(d.take(int(n)))
}

func (d *decoder) optStr(max int) *string {
	flag := d.take(1)
	if d.err != nil {
		return nil
	}
	switch flag[0] {
	case 0:
		return nil
	case 1:
		s := d.str(max)
		return &s
	}
	d.err = fmt.Errorf("%w: bad option flag %d", ErrMalformedInstruction, flag[0])
	return nil
}

func (d *decoder) id() identity.Identity {
	var id identity.Identity
	copy(id[:], d.take(identity.Size))
	return id
}

// finish reports the first decode error, or trailing bytes.
func (d *decoder) finish() error {
	if d.err != nil {
		return d.err
	}
	if len(d.buf) != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrMalformedInstruction, len(d.buf))
	}
	return nil
}
