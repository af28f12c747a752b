package ledgerrpc

import (
	"github.com/mirokugang/mukon/internal/address"
	"github.com/mirokugang/mukon/internal/program"
	"github.com/mirokugang/mukon/internal/txn"
)

type SubmitRequest struct {
	Transaction *txn.Transaction `json:"transaction"`
}

type SubmitResponse struct {
	Signature string `json:"signature"`
	Sequence  int64  `json:"sequence"`
}

type GetAccountRequest struct {
	Address address.Address `json:"address"`
}

type GetAccountResponse struct {
	Account *program.Account `json:"account"`
}

type PingRequest struct{}

type PingResponse struct {
	Status string `json:"status"`
}
