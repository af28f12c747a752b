package program

import (
	"errors"
	"fmt"
)

// Error is a terminal program failure. Code and Name travel to the submitting
// client unchanged; resubmitting the same operation yields the same error.
type Error struct {
	Code uint32
	Name string
	msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.msg)
}

func newError(code uint32, name, msg string) *Error {
	e := &Error{Code: code, Name: name, msg: msg}
	registry[code] = e
	return e
}

var registry = map[uint32]*Error{}

var (
	ErrAlreadyRegistered    = newError(6000, "AlreadyRegistered", "profile already registered")
	ErrUnauthorized         = newError(6001, "Unauthorized", "signer does not own the account")
	ErrValidation           = newError(6002, "ValidationError", "invalid argument")
	ErrDuplicatePeer        = newError(6003, "DuplicatePeer", "peer already present in directory")
	ErrCapacityExceeded     = newError(6004, "CapacityExceeded", "peer directory is full")
	ErrInvalidState         = newError(6005, "InvalidState", "relationship is not in the required state")
	ErrAlreadyActive        = newError(6006, "AlreadyActive", "conversation already exists")
	ErrNotRegistered        = newError(6007, "NotRegistered", "account not initialized")
	ErrInvalidAccount       = newError(6008, "InvalidAccount", "account does not match derived address")
	ErrInconsistent         = newError(6009, "Inconsistent", "mirrored directory entries disagree")
	ErrUnknownOperation     = newError(6010, "UnknownOperation", "unknown operation tag")
	ErrMalformedInstruction = newError(6011, "MalformedInstruction", "instruction data could not be decoded")
)

// ErrorByCode returns the program error registered under code.
func ErrorByCode(code uint32) (*Error, bool) {
	e, ok := registry[code]
	return e, ok
}

// AsError extracts the program error carried by err, if any.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
