package txn

import (
	"encoding/json"
	"testing"

	"github.com/mirokugang/mukon/internal/address"
	"github.com/mirokugang/mukon/internal/common"
	"github.com/mirokugang/mukon/internal/identity"
	"github.com/mirokugang/mukon/internal/program"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T) (*Transaction, *identity.KeyPair) {
	t.Helper()
	kp, err := identity.Generate()
	require.NoError(t, err)
	tx := New(kp.Identity(), 7, program.NewRegister(kp.Identity(), address.CurrentVersion, "Alice"))
	require.NoError(t, tx.Sign(kp))
	return tx, kp
}

func TestSignVerify(t *testing.T) {
	tx, _ := signed(t)
	assert.NoError(t, tx.Verify())
	assert.NotEmpty(t, tx.ID())
}

func TestVerify_DetectsTampering(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(tx *Transaction)
	}{
		{"nonce", func(tx *Transaction) { tx.Nonce++ }},
		{"data", func(tx *Transaction) { tx.Instruction.Data[len(tx.Instruction.Data)-1] ^= 1 }},
		{"accounts", func(tx *Transaction) { tx.Instruction.Accounts[0][0] ^= 1 }},
		{"signer", func(tx *Transaction) { tx.Signer[0] ^= 1 }},
		{"signature", func(tx *Transaction) { tx.Signature[0] ^= 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, _ := signed(t)
			tt.mutate(tx)
			assert.ErrorIs(t, tx.Verify(), common.ErrBadSignature)
		})
	}
}

func TestSign_WrongKey(t *testing.T) {
	tx, _ := signed(t)
	other, err := identity.Generate()
	require.NoError(t, err)
	assert.ErrorIs(t, tx.Sign(other), common.ErrBadSignature)
}

func TestVerify_Limits(t *testing.T) {
	tx, kp := signed(t)
	tx.Instruction.Data = make([]byte, MaxDataSize+1)
	require.NoError(t, tx.Sign(kp))
	assert.ErrorIs(t, tx.Verify(), common.ErrMalformedPayload)

	tx, kp = signed(t)
	tx.Instruction.Accounts = make([]address.Address, MaxAccounts+1)
	require.NoError(t, tx.Sign(kp))
	assert.ErrorIs(t, tx.Verify(), common.ErrMalformedPayload)
}

func TestJSON_RoundTripKeepsSignatureValid(t *testing.T) {
	tx, _ := signed(t)

	data, err := json.Marshal(tx)
	require.NoError(t, err)

	var got Transaction
	require.NoError(t, json.Unmarshal(data, &got))
	assert.NoError(t, got.Verify())
	assert.Equal(t, tx.ID(), got.ID())
}
