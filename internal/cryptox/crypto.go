// Package cryptox seals private key material under a passphrase.
//
// The passphrase is stretched with Argon2id and the secret is encrypted with
// XChaCha20-Poly1305. The sealed form is a small JSON document so keystore
// files stay inspectable.
package cryptox

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mirokugang/mukon/internal/common"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	keystoreVersion = 1
	saltSize        = 16

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = chacha20poly1305.KeySize
)

var (
	ErrWrongPassphrase = errors.New("wrong passphrase or corrupted keystore")
	ErrUnsupported     = errors.New("unsupported keystore version")
)

// Sealed is the on-disk representation of an encrypted secret.
type Sealed struct {
	Version    int    `json:"version"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// DeriveKey stretches a passphrase into a symmetric key with Argon2id.
func DeriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// Seal encrypts secret under passphrase and returns the JSON-encoded keystore.
func Seal(secret, passphrase []byte) ([]byte, error) {
	salt, err := common.RandomBytes(saltSize)
	if err != nil {
		return nil, err
	}

	key := DeriveKey(passphrase, salt)
	defer common.WipeByteArray(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}

	nonce, err := common.RandomBytes(aead.NonceSize())
	if err != nil {
		return nil, err
	}

	s := Sealed{
		Version:    keystoreVersion,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, secret, salt),
	}
	return json.MarshalIndent(s, "", "  ")
}

// Open reverses Seal.
func Open(data, passphrase []byte) ([]byte, error) {
	var s Sealed
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("keystore decode: %w", err)
	}
	if s.Version != keystoreVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupported, s.Version)
	}

	key := DeriveKey(passphrase, s.Salt)
	defer common.WipeByteArray(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	if len(s.Nonce) != aead.NonceSize() {
		return nil, ErrWrongPassphrase
	}

	plaintext, err := aead.Open(nil, s.Nonce, s.Ciphertext, s.Salt)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return plaintext, nil
}
