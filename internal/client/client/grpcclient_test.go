package client

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mirokugang/mukon/internal/address"
	"github.com/mirokugang/mukon/internal/common"
	"github.com/mirokugang/mukon/internal/identity"
	"github.com/mirokugang/mukon/internal/ledgerrpc"
	"github.com/mirokugang/mukon/internal/program"
	"github.com/mirokugang/mukon/internal/txn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// fakeLedger answers Submit with the queued errors, then succeeds.
type fakeLedger struct {
	submitErrs []error
	submits    []*ledgerrpc.SubmitRequest

	accounts map[address.Address]*program.Account
	pingResp *ledgerrpc.PingResponse
	pingErr  error
}

func (f *fakeLedger) Submit(_ context.Context, in *ledgerrpc.SubmitRequest, _ ...grpc.CallOption) (*ledgerrpc.SubmitResponse, error) {
	f.submits = append(f.submits, in)
	if len(f.submitErrs) > 0 {
		err := f.submitErrs[0]
		f.submitErrs = f.submitErrs[1:]
		return nil, err
	}
	return &ledgerrpc.SubmitResponse{Signature: in.Transaction.ID(), Sequence: int64(len(f.submits))}, nil
}

func (f *fakeLedger) GetAccount(_ context.Context, in *ledgerrpc.GetAccountRequest, _ ...grpc.CallOption) (*ledgerrpc.GetAccountResponse, error) {
	acc, ok := f.accounts[in.Address]
	if !ok {
		return nil, status.Error(codes.NotFound, "account not found")
	}
	return &ledgerrpc.GetAccountResponse{Account: acc}, nil
}

func (f *fakeLedger) Ping(context.Context, *ledgerrpc.PingRequest, ...grpc.CallOption) (*ledgerrpc.PingResponse, error) {
	return f.pingResp, f.pingErr
}

func newTestClient(f *fakeLedger, retries uint64) *GRPCClient {
	return &GRPCClient{
		version: address.CurrentVersion,
		retry:   RetryPolicy{MaxRetries: retries, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond},
		client:  f,
	}
}

func signedRegister(t *testing.T) (*identity.KeyPair, *txn.Transaction) {
	t.Helper()
	kp, err := identity.Generate()
	require.NoError(t, err)
	tx := txn.New(kp.Identity(), 1, program.NewRegister(kp.Identity(), address.CurrentVersion, "alice"))
	require.NoError(t, tx.Sign(kp))
	return kp, tx
}

func TestSubmit_RetriesTransientWithSamePayload(t *testing.T) {
	f := &fakeLedger{submitErrs: []error{
		status.Error(codes.Unavailable, "down"),
		status.Error(codes.DeadlineExceeded, "slow"),
	}}
	c := newTestClient(f, 5)
	_, tx := signedRegister(t)

	rc, err := c.Submit(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, tx.ID(), rc.Signature)
	require.Len(t, f.submits, 3)
	for _, req := range f.submits {
		assert.Same(t, tx, req.Transaction)
	}
}

func TestSubmit_GivesUpAfterBudget(t *testing.T) {
	f := &fakeLedger{submitErrs: []error{
		status.Error(codes.Unavailable, "1"),
		status.Error(codes.Unavailable, "2"),
		status.Error(codes.Unavailable, "3"),
		status.Error(codes.Unavailable, "4"),
	}}
	c := newTestClient(f, 2)
	_, tx := signedRegister(t)

	_, err := c.Submit(context.Background(), tx)
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Len(t, f.submits, 3, "one attempt plus two retries")
}

func TestSubmit_ProgramErrorIsPermanent(t *testing.T) {
	f := &fakeLedger{submitErrs: []error{
		ledgerrpc.ProgramStatus(program.ErrAlreadyRegistered, "AlreadyRegistered: profile already registered"),
	}}
	c := newTestClient(f, 5)
	_, tx := signedRegister(t)

	_, err := c.Submit(context.Background(), tx)
	require.ErrorIs(t, err, program.ErrAlreadyRegistered)
	assert.Len(t, f.submits, 1)
}

func TestSubmit_InvalidArgumentIsRejected(t *testing.T) {
	f := &fakeLedger{submitErrs: []error{status.Error(codes.InvalidArgument, "bad signature")}}
	c := newTestClient(f, 5)
	_, tx := signedRegister(t)

	_, err := c.Submit(context.Background(), tx)
	require.ErrorIs(t, err, ErrRejected)
	assert.Len(t, f.submits, 1)
}

func TestSubmit_StopsOnCancelledContext(t *testing.T) {
	f := &fakeLedger{submitErrs: []error{status.Error(codes.Unavailable, "down")}}
	c := newTestClient(f, 5)
	c.retry.InitialInterval = time.Hour
	c.retry.MaxInterval = time.Hour
	_, tx := signedRegister(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Submit(ctx, tx)
	require.Error(t, err)
	assert.Len(t, f.submits, 1)
}

func TestTypedReads(t *testing.T) {
	kp, err := identity.Generate()
	require.NoError(t, err)
	id := kp.Identity()

	p := &program.Profile{Version: address.CurrentVersion, Owner: id, DisplayName: "alice"}
	pdata, err := p.MarshalBinary()
	require.NoError(t, err)

	paddr := address.Profile(id, address.CurrentVersion)
	f := &fakeLedger{accounts: map[address.Address]*program.Account{
		paddr: {Address: paddr, Kind: program.KindProfile, Data: pdata},
	}}
	c := newTestClient(f, 0)

	got, err := c.Profile(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.DisplayName)

	_, err = c.Directory(context.Background(), id)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestPing(t *testing.T) {
	c := newTestClient(&fakeLedger{pingResp: &ledgerrpc.PingResponse{Status: "OK"}}, 0)
	require.NoError(t, c.Ping(context.Background()))

	c = newTestClient(&fakeLedger{pingResp: &ledgerrpc.PingResponse{Status: "DEGRADED"}}, 0)
	assert.ErrorIs(t, c.Ping(context.Background()), ErrUnavailable)

	c = newTestClient(&fakeLedger{pingErr: status.Error(codes.Unavailable, "x")}, 0)
	assert.ErrorIs(t, c.Ping(context.Background()), ErrUnavailable)
}

func TestMapError_Passthrough(t *testing.T) {
	c := &GRPCClient{}
	assert.Nil(t, c.mapError(nil))
	assert.ErrorIs(t, c.mapError(context.Canceled), context.Canceled)

	err := c.mapError(status.Error(codes.Internal, "boom"))
	assert.False(t, errors.Is(err, ErrUnavailable))
	assert.Contains(t, err.Error(), "rpc error")
}

func TestInitDatabase_CreatesContactsTable(t *testing.T) {
	ctx := context.Background()
	db, err := InitDatabase(ctx, filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='contacts'`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestInitDatabase_AppliesPragmas(t *testing.T) {
	db, err := InitDatabase(context.Background(), filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	defer db.Close()

	var timeout int
	require.NoError(t, db.QueryRow(`PRAGMA busy_timeout`).Scan(&timeout))
	assert.Equal(t, 5000, timeout)

	var mode string
	require.NoError(t, db.QueryRow(`PRAGMA journal_mode`).Scan(&mode))
	assert.Equal(t, "wal", mode)
}
