// Package address derives account addresses and conversation handles.
//
// Every address is sha256 over an ordered list of seeds. The schema version is
// always the last seed, so accounts from different schema generations never
// collide. All functions are pure: any party can recompute an address without
// consulting stored state.
package address

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/mirokugang/mukon/internal/identity"
	"github.com/mr-tron/base58"
)

// Size is the byte length of an Address.
const Size = sha256.Size

// CurrentVersion is the schema version used by new accounts.
const CurrentVersion uint8 = 1

const (
	profileSeed      = "profile"
	directorySeed    = "directory"
	conversationSeed = "conversation"
)

var ErrInvalidAddress = errors.New("invalid address")

// Address identifies a ledger account.
type Address [Size]byte

// Handle is the address of a two-party conversation.
type Handle = Address

// Derive hashes seeds in order into an Address.
func Derive(seeds ...[]byte) Address {
	h := sha256.New()
	for _, s := range seeds {
		h.Write(s)
	}
	var a Address
	copy(a[:], h.Sum(nil))
	return a
}

// Profile is the address of id's profile account.
func Profile(id identity.Identity, version uint8) Address {
	return Derive([]byte(profileSeed), id.Bytes(), []byte{version})
}

// Directory is the address of id's peer directory account.
func Directory(id identity.Identity, version uint8) Address {
	return Derive([]byte(directorySeed), id.Bytes(), []byte{version})
}

// Conversation derives the handle shared by a and b. The pair is sorted
// first, so the result does not depend on argument order.
func Conversation(a, b identity.Identity, version uint8) Handle {
	lo, hi := Sort(a, b)
	return Derive([]byte(conversationSeed), lo.Bytes(), hi.Bytes(), []byte{version})
}

// Sort returns the pair in ascending byte order.
func Sort(a, b identity.Identity) (identity.Identity, identity.Identity) {
	if a.Compare(b) <= 0 {
		return a, b
	}
	return b, a
}

// IsParticipant reports whether handle is the conversation between self and
// peer.
func IsParticipant(handle Handle, self, peer identity.Identity, version uint8) bool {
	return Conversation(self, peer, version) == handle
}

// Parse decodes the base58 text form of an address.
func Parse(s string) (Address, error) {
	var a Address
	b, err := base58.Decode(s)
	if err != nil {
		return a, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(b) != Size {
		return a, fmt.Errorf("%w: decoded %d bytes", ErrInvalidAddress, len(b))
	}
	copy(a[:], b)
	return a, nil
}

func (a Address) String() string {
	return base58.Encode(a[:])
}

func (a Address) Bytes() []byte {
	return a[:]
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
