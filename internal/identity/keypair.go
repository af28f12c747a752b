package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

// KeyPair holds the private half of an Identity.
type KeyPair struct {
	id   Identity
	priv ed25519.PrivateKey
}

// Generate creates a fresh random key pair.
func Generate() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	id, err := FromPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return &KeyPair{id: id, priv: priv}, nil
}

// FromSeed rebuilds a key pair from its 32-byte ed25519 seed.
func FromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: seed is %d bytes", ErrInvalidIdentity, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	id, err := FromPublicKey(priv.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}
	return &KeyPair{id: id, priv: priv}, nil
}

func (k *KeyPair) Identity() Identity {
	return k.id
}

// Seed returns a copy of the private seed; callers should wipe it after use.
func (k *KeyPair) Seed() []byte {
	return append([]byte(nil), k.priv.Seed()...)
}

func (k *KeyPair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.priv, msg)
}
