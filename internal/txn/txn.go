// Package txn defines the signed envelope carrying one program instruction to
// the ledger.
package txn

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/mirokugang/mukon/internal/common"
	"github.com/mirokugang/mukon/internal/identity"
	"github.com/mirokugang/mukon/internal/program"
	"github.com/mr-tron/base58"
)

const (
	messageDomain = "mukon:tx:v1"

	// MaxDataSize bounds instruction data accepted by the ledger.
	MaxDataSize = 4096
	// MaxAccounts bounds the accounts one instruction may reference.
	MaxAccounts = 8
)

// Transaction is a signed instruction. The signature covers every other
// field, so a transaction can be resubmitted verbatim but not altered.
type Transaction struct {
	Signer      identity.Identity   `json:"signer"`
	Nonce       uint64              `json:"nonce"`
	Instruction program.Instruction `json:"instruction"`
	Signature   []byte              `json:"signature"`
}

func New(signer identity.Identity, nonce uint64, ix program.Instruction) *Transaction {
	return &Transaction{Signer: signer, Nonce: nonce, Instruction: ix}
}

// Message is the canonical byte string the signature covers.
func (t *Transaction) Message() []byte {
	ix := t.Instruction
	buf := make([]byte, 0, len(messageDomain)+identity.Size+8+2+len(ix.Accounts)*32+4+len(ix.Data))
	buf = append(buf, messageDomain...)
	buf = append(buf, t.Signer[:]...)
	buf = binary.BigEndian.AppendUint64(buf, t.Nonce)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(ix.Accounts)))
	for _, a := range ix.Accounts {
		buf = append(buf, a[:]...)
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(ix.Data)))
	buf = append(buf, ix.Data...)
	return buf
}

// Sign signs the transaction with kp, which must own Signer.
func (t *Transaction) Sign(kp *identity.KeyPair) error {
	if kp.Identity() != t.Signer {
		return fmt.Errorf("%w: key pair is %s, signer is %s", common.ErrBadSignature, kp.Identity(), t.Signer)
	}
	t.Signature = kp.Sign(t.Message())
	return nil
}

// Verify checks size limits and the signature.
func (t *Transaction) Verify() error {
	ix := t.Instruction
	switch {
	case len(ix.Accounts) > MaxAccounts || len(ix.Accounts) > math.MaxUint16:
		return fmt.Errorf("%w: %d accounts", common.ErrMalformedPayload, len(ix.Accounts))
	case len(ix.Data) > MaxDataSize:
		return fmt.Errorf("%w: %d bytes of data", common.ErrMalformedPayload, len(ix.Data))
	case t.Signer.IsZero():
		return fmt.Errorf("%w: missing signer", common.ErrMalformedPayload)
	}
	if !identity.Verify(t.Signer, t.Message(), t.Signature) {
		return common.ErrBadSignature
	}
	return nil
}

// ID is the transaction id: the base58 signature.
func (t *Transaction) ID() string {
	return base58.Encode(t.Signature)
}
