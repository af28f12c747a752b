package grpc

import (
	"context"
	"errors"

	"github.com/mirokugang/mukon/internal/common"
	"github.com/mirokugang/mukon/internal/ledgerrpc"
	"github.com/mirokugang/mukon/internal/program"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// handler implements ledgerrpc.LedgerServer.
type handler struct {
	s *GRPCServer
}

func (h *handler) Submit(ctx context.Context, req *ledgerrpc.SubmitRequest) (*ledgerrpc.SubmitResponse, error) {
	if req.Transaction == nil {
		return nil, status.Error(codes.InvalidArgument, "missing transaction")
	}

	rc, err := h.s.ledger.Submit(ctx, req.Transaction)
	if err != nil {
		return nil, h.s.toStatus(ctx, err)
	}

	return &ledgerrpc.SubmitResponse{Signature: rc.Signature, Sequence: rc.Sequence}, nil
}

func (h *handler) GetAccount(ctx context.Context, req *ledgerrpc.GetAccountRequest) (*ledgerrpc.GetAccountResponse, error) {
	acc, err := h.s.ledger.GetAccount(ctx, req.Address)
	if err != nil {
		return nil, h.s.toStatus(ctx, err)
	}
	return &ledgerrpc.GetAccountResponse{Account: acc}, nil
}

func (h *handler) Ping(ctx context.Context, req *ledgerrpc.PingRequest) (*ledgerrpc.PingResponse, error) {
	return &ledgerrpc.PingResponse{Status: "OK"}, nil
}

func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	if pe, ok := program.AsError(err); ok {
		return ledgerrpc.ProgramStatus(pe, err.Error())
	}

	switch {
	case errors.Is(err, common.ErrBadSignature), errors.Is(err, common.ErrMalformedPayload):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, "account not found")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	}

	s.logger.Error(ctx, err.Error())
	return status.Error(codes.Unavailable, "ledger temporarily unavailable")
}
