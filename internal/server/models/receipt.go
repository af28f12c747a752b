package models

import (
	"time"

	"github.com/mirokugang/mukon/internal/identity"
)

// Receipt is the recorded outcome of one processed transaction. Failed
// transactions are recorded too, with a non-zero ErrCode, so resubmitting the
// same signed payload reports the original outcome.
type Receipt struct {
	Sequence    int64
	Signature   string
	Signer      identity.Identity
	Operation   string
	ErrCode     uint32
	ErrMessage  string
	ProcessedAt time.Time
}

func (r *Receipt) Failed() bool {
	return r.ErrCode != 0
}
