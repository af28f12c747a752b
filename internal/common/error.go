// Package common defines shared constants and sentinel errors used across
// the ledger node, relay and client. Callers should use errors.Is to match
// these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors.
	ErrorInternal = errors.New("internal error")

	// Transaction envelope errors.
	ErrBadSignature     = errors.New("bad signature")
	ErrMalformedPayload = errors.New("malformed payload")

	// Transient transport errors, safe to retry with the same payload.
	ErrUnavailable = errors.New("ledger unavailable")
)
