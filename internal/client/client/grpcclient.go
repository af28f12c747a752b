package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/mirokugang/mukon/internal/address"
	"github.com/mirokugang/mukon/internal/common"
	"github.com/mirokugang/mukon/internal/identity"
	"github.com/mirokugang/mukon/internal/ledgerrpc"
	"github.com/mirokugang/mukon/internal/program"
	"github.com/mirokugang/mukon/internal/txn"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// RetryPolicy bounds resubmission of transiently failed calls.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// CallTimeout bounds each attempt; zero leaves it to ctx.
	CallTimeout time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      5,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		CallTimeout:     10 * time.Second,
	}
}

type GRPCClient struct {
	endpointURL string
	version     uint8
	retry       RetryPolicy
	conn        *grpc.ClientConn
	client      ledgerrpc.LedgerClient
}

func NewLedgerClient(endpointURL string, version uint8, retry RetryPolicy) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, version: version, retry: retry}
	err := c.InitGRPCClient()
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *GRPCClient) InitGRPCClient() error {

	conn, err := grpc.NewClient(s.endpointURL,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(requestIDInterceptor),
	)
	if err != nil {
		return err
	}
	s.conn = conn
	s.client = ledgerrpc.NewLedgerClient(conn)
	return nil
}

func requestIDInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	ctx = metadata.AppendToOutgoingContext(ctx, common.RequestIDHeaderName, uuid.NewString())
	return invoker(ctx, method, req, reply, cc, opts...)
}

func (s *GRPCClient) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *GRPCClient) Ping(ctx context.Context) error {

	resp, err := s.client.Ping(ctx, &ledgerrpc.PingRequest{})
	if err != nil {
		return s.mapError(err)
	}

	if resp.Status != "OK" {
		return ErrUnavailable
	}

	return nil
}

func (s *GRPCClient) Submit(ctx context.Context, tx *txn.Transaction) (*Receipt, error) {
	req := &ledgerrpc.SubmitRequest{Transaction: tx}

	var resp *ledgerrpc.SubmitResponse
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var err error
		resp, err = s.client.Submit(ctx, req)
		return err
	})
	if err != nil {
		return nil, s.mapError(err)
	}

	return &Receipt{Signature: resp.Signature, Sequence: resp.Sequence}, nil
}

func (s *GRPCClient) Account(ctx context.Context, addr address.Address) (*program.Account, error) {
	req := &ledgerrpc.GetAccountRequest{Address: addr}

	var resp *ledgerrpc.GetAccountResponse
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var err error
		resp, err = s.client.GetAccount(ctx, req)
		return err
	})
	if err != nil {
		return nil, s.mapError(err)
	}
	if resp.Account == nil {
		return nil, common.ErrorNotFound
	}
	return resp.Account, nil
}

func (s *GRPCClient) Profile(ctx context.Context, id identity.Identity) (*program.Profile, error) {
	acc, err := s.Account(ctx, address.Profile(id, s.version))
	if err != nil {
		return nil, err
	}
	return program.DecodeProfile(acc.Data)
}

func (s *GRPCClient) Directory(ctx context.Context, id identity.Identity) (*program.Directory, error) {
	acc, err := s.Account(ctx, address.Directory(id, s.version))
	if err != nil {
		return nil, err
	}
	return program.DecodeDirectory(acc.Data)
}

func (s *GRPCClient) Conversation(ctx context.Context, handle address.Handle) (*program.Conversation, error) {
	acc, err := s.Account(ctx, handle)
	if err != nil {
		return nil, err
	}
	return program.DecodeConversation(acc.Data)
}

// withRetry runs call until it succeeds, fails permanently, the retry budget
// is spent or ctx is done.
func (s *GRPCClient) withRetry(ctx context.Context, call func(ctx context.Context) error) error {
	eb := backoff.NewExponentialBackOff()
	if s.retry.InitialInterval > 0 {
		eb.InitialInterval = s.retry.InitialInterval
	}
	if s.retry.MaxInterval > 0 {
		eb.MaxInterval = s.retry.MaxInterval
	}
	eb.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(eb, s.retry.MaxRetries), ctx)

	return backoff.Retry(func() error {
		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if s.retry.CallTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, s.retry.CallTimeout)
		}
		defer cancel()

		err := call(attemptCtx)
		if err == nil || transient(err) {
			return err
		}
		return backoff.Permanent(err)
	}, b)
}

func transient(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return true
	}
	return false
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	if pe, ok := ledgerrpc.ProgramError(err); ok {
		return pe
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.NotFound:
		return common.ErrorNotFound
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", ErrRejected, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return fmt.Errorf("%w: %s", ErrUnavailable, st.Message())
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
