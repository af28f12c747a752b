// Package identity models an account identity as an ed25519 public key and
// provides key pairs that sign on its behalf.
package identity

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// Size is the byte length of an Identity.
const Size = ed25519.PublicKeySize

var ErrInvalidIdentity = errors.New("invalid identity")

// Identity is an ed25519 public verification key. It is the sole account
// identifier: profiles, directories and conversation handles are all derived
// from it.
type Identity [Size]byte

// FromPublicKey copies an ed25519 public key into an Identity.
func FromPublicKey(pub ed25519.PublicKey) (Identity, error) {
	var id Identity
	if len(pub) != Size {
		return id, fmt.Errorf("%w: public key is %d bytes", ErrInvalidIdentity, len(pub))
	}
	copy(id[:], pub)
	return id, nil
}

// Parse decodes the base58 text form of an identity.
func Parse(s string) (Identity, error) {
	var id Identity
	b, err := base58.Decode(s)
	if err != nil {
		return id, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	if len(b) != Size {
		return id, fmt.Errorf("%w: decoded %d bytes", ErrInvalidIdentity, len(b))
	}
	copy(id[:], b)
	return id, nil
}

func (id Identity) String() string {
	return base58.Encode(id[:])
}

func (id Identity) Bytes() []byte {
	return id[:]
}

func (id Identity) PublicKey() ed25519.PublicKey {
	return ed25519.PublicKey(id[:])
}

func (id Identity) IsZero() bool {
	return id == Identity{}
}

// Compare orders identities byte-wise.
func (id Identity) Compare(other Identity) int {
	return bytes.Compare(id[:], other[:])
}

func (id Identity) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *Identity) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Verify reports whether sig is a valid signature of msg by id.
func Verify(id Identity, msg, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(id.PublicKey(), msg, sig)
}
