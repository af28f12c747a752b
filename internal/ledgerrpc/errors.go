package ledgerrpc

import (
	"fmt"
	"strconv"

	"github.com/mirokugang/mukon/internal/program"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorDomain marks ErrorInfo details that carry a program error.
const ErrorDomain = "ledger.mukon"

const codeKey = "code"

// ProgramStatus encodes a program error as FailedPrecondition with an
// ErrorInfo detail holding its numeric code.
func ProgramStatus(pe *program.Error, msg string) error {
	st := status.New(codes.FailedPrecondition, msg)
	withInfo, err := st.WithDetails(&errdetails.ErrorInfo{
		Reason:   pe.Name,
		Domain:   ErrorDomain,
		Metadata: map[string]string{codeKey: strconv.FormatUint(uint64(pe.Code), 10)},
	})
	if err != nil {
		return st.Err()
	}
	return withInfo.Err()
}

// ProgramError recovers the program error carried by a status error. The
// result wraps the registered *program.Error, so errors.Is matches it.
func ProgramError(err error) (error, bool) {
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.FailedPrecondition {
		return nil, false
	}
	for _, d := range st.Details() {
		info, ok := d.(*errdetails.ErrorInfo)
		if !ok || info.GetDomain() != ErrorDomain {
			continue
		}
		code, err := strconv.ParseUint(info.GetMetadata()[codeKey], 10, 32)
		if err != nil {
			return nil, false
		}
		pe, ok := program.ErrorByCode(uint32(code))
		if !ok {
			return nil, false
		}
		return fmt.Errorf("%w: %s", pe, st.Message()), true
	}
	return nil, false
}
