package grpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/mirokugang/mukon/internal/address"
	"github.com/mirokugang/mukon/internal/common"
	"github.com/mirokugang/mukon/internal/identity"
	"github.com/mirokugang/mukon/internal/ledgerrpc"
	"github.com/mirokugang/mukon/internal/logging"
	"github.com/mirokugang/mukon/internal/program"
	"github.com/mirokugang/mukon/internal/server/repositories/repomanager"
	"github.com/mirokugang/mukon/internal/server/services"
	"github.com/mirokugang/mukon/internal/txn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type nopLogger struct{}

func (n nopLogger) Info(context.Context, string, ...any)  {}
func (n nopLogger) Warn(context.Context, string, ...any)  {}
func (n nopLogger) Error(context.Context, string, ...any) {}
func (n nopLogger) With(...any) logging.Logger            { return n }

// startServer serves a fresh in-memory ledger over bufconn.
func startServer(t *testing.T) ledgerrpc.LedgerClient {
	t.Helper()

	ledger := services.NewLedgerService(repomanager.NewMemoryRepositoryManager(), program.New(program.DefaultConfig()), nopLogger{})
	srv := NewGRPCServer("bufnet", nopLogger{}, ledger)

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return ledgerrpc.NewLedgerClient(conn)
}

func register(t *testing.T, kp *identity.KeyPair, nonce uint64) *txn.Transaction {
	t.Helper()
	tx := txn.New(kp.Identity(), nonce, program.NewRegister(kp.Identity(), address.CurrentVersion, "alice"))
	require.NoError(t, tx.Sign(kp))
	return tx
}

func TestServer_SubmitAndRead(t *testing.T) {
	c := startServer(t)
	ctx := context.Background()
	kp, err := identity.Generate()
	require.NoError(t, err)

	tx := register(t, kp, 1)
	var header metadata.MD
	resp, err := c.Submit(ctx, &ledgerrpc.SubmitRequest{Transaction: tx}, grpc.Header(&header))
	require.NoError(t, err)
	assert.Equal(t, tx.ID(), resp.Signature)
	assert.NotEmpty(t, header.Get(common.RequestIDHeaderName))

	acc, err := c.GetAccount(ctx, &ledgerrpc.GetAccountRequest{Address: address.Profile(kp.Identity(), address.CurrentVersion)})
	require.NoError(t, err)
	assert.Equal(t, program.KindProfile, acc.Account.Kind)

	pong, err := c.Ping(ctx, &ledgerrpc.PingRequest{})
	require.NoError(t, err)
	assert.Equal(t, "OK", pong.Status)
}

func TestServer_ProgramErrorCarriesCode(t *testing.T) {
	c := startServer(t)
	ctx := context.Background()
	kp, err := identity.Generate()
	require.NoError(t, err)

	_, err = c.Submit(ctx, &ledgerrpc.SubmitRequest{Transaction: register(t, kp, 1)})
	require.NoError(t, err)

	_, err = c.Submit(ctx, &ledgerrpc.SubmitRequest{Transaction: register(t, kp, 2)})
	require.Equal(t, codes.FailedPrecondition, status.Code(err))
	pe, ok := ledgerrpc.ProgramError(err)
	require.True(t, ok)
	assert.True(t, errors.Is(pe, program.ErrAlreadyRegistered))
}

func TestServer_BadSignatureIsInvalidArgument(t *testing.T) {
	c := startServer(t)
	kp, err := identity.Generate()
	require.NoError(t, err)

	tx := register(t, kp, 1)
	tx.Signature[0] ^= 0xff
	_, err = c.Submit(context.Background(), &ledgerrpc.SubmitRequest{Transaction: tx})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = c.Submit(context.Background(), &ledgerrpc.SubmitRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestServer_MissingAccountIsNotFound(t *testing.T) {
	c := startServer(t)
	_, err := c.GetAccount(context.Background(), &ledgerrpc.GetAccountRequest{Address: address.Derive([]byte("nothing"))})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:0", nopLogger{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error on graceful stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:99999", nopLogger{}, nil)

	if err := srv.Run(context.Background()); err == nil {
		t.Fatal("expected error from Run on bad address, got nil")
	}
}
