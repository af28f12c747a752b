package relay

import (
	"errors"
	"fmt"
)

// Error codes carried by error events.
const (
	CodeAuthFailed      = "AuthFailed"
	CodeUnauthenticated = "Unauthenticated"
	CodeForbidden       = "Forbidden"
	CodeNotJoined       = "NotJoined"
	CodeBadRequest      = "BadRequest"
)

// Error is a request failure reported to the client as an error event. It
// never closes the connection by itself.
type Error struct {
	Code string
	msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.msg)
}

var (
	ErrAuthFailed      = &Error{Code: CodeAuthFailed, msg: "authentication failed"}
	ErrUnauthenticated = &Error{Code: CodeUnauthenticated, msg: "authenticate first"}
	ErrForbidden       = &Error{Code: CodeForbidden, msg: "not a participant of this conversation"}
	ErrNotJoined       = &Error{Code: CodeNotJoined, msg: "conversation not joined"}
	ErrBadRequest      = &Error{Code: CodeBadRequest, msg: "malformed request"}
)

// codeOf maps err to the code of the relay error it wraps; anything else is
// reported as BadRequest.
func codeOf(err error) string {
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	return CodeBadRequest
}
