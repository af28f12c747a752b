package client

import (
	"errors"

	"github.com/mirokugang/mukon/internal/common"
)

// ErrUnavailable marks transport failures worth retrying with the same
// signed transaction.
var ErrUnavailable = common.ErrUnavailable

var (
	// ErrRejected is a transaction the node refused before running the
	// program, such as a bad signature or a malformed envelope.
	ErrRejected = errors.New("transaction rejected by ledger")

	ErrLocalDataNotAvailable = errors.New("local contacts cache unavailable")
)
