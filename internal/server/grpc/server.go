// Package grpc exposes the ledger service over gRPC.
package grpc

import (
	"context"
	"net"

	"github.com/mirokugang/mukon/internal/address"
	"github.com/mirokugang/mukon/internal/ledgerrpc"
	"github.com/mirokugang/mukon/internal/logging"
	"github.com/mirokugang/mukon/internal/program"
	"github.com/mirokugang/mukon/internal/server/models"
	"github.com/mirokugang/mukon/internal/txn"
	"google.golang.org/grpc"
)

// Ledger is the service the handlers delegate to.
type Ledger interface {
	Submit(ctx context.Context, tx *txn.Transaction) (*models.Receipt, error)
	GetAccount(ctx context.Context, addr address.Address) (*program.Account, error)
}

type GRPCServer struct {
	address string
	ledger  Ledger
	logger  logging.Logger
}

func NewGRPCServer(a string, l logging.Logger, ledger Ledger) *GRPCServer {
	return &GRPCServer{
		address: a,
		logger:  l.With("module", "grpc_server"),
		ledger:  ledger,
	}
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve runs the server on an existing listener until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, listen net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.requestIDInterceptor, s.loggingInterceptor))

	ledgerrpc.RegisterLedgerServer(srv, &handler{s: s})

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
