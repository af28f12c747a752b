// Package services contains server-side business logic. This file implements
// LedgerService, which hosts the ledger program: it verifies signed
// transactions, applies them atomically and records every outcome.
package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/mirokugang/mukon/internal/address"
	"github.com/mirokugang/mukon/internal/common"
	"github.com/mirokugang/mukon/internal/logging"
	"github.com/mirokugang/mukon/internal/program"
	"github.com/mirokugang/mukon/internal/server/models"
	"github.com/mirokugang/mukon/internal/server/repositories/accounts"
	"github.com/mirokugang/mukon/internal/server/repositories/repomanager"
	"github.com/mirokugang/mukon/internal/txn"
)

// txLockSeed namespaces the lock key that serializes duplicate submissions of
// one signed payload.
var txLockSeed = []byte("tx")

type LedgerService struct {
	repomanager repomanager.RepositoryManager
	program     *program.Program
	logger      logging.Logger
	now         func() time.Time
}

func NewLedgerService(m repomanager.RepositoryManager, p *program.Program, l logging.Logger) *LedgerService {
	return &LedgerService{
		repomanager: m,
		program:     p,
		logger:      l.With("module", "ledger_service"),
		now:         time.Now,
	}
}

// Submit verifies tx and applies it at most once. The returned receipt is the
// recorded outcome; when the program rejected the transaction the matching
// *program.Error is returned alongside it. Resubmitting the same signed
// payload returns the recorded outcome without applying it again.
func (s *LedgerService) Submit(ctx context.Context, tx *txn.Transaction) (*models.Receipt, error) {
	if err := tx.Verify(); err != nil {
		return nil, err
	}
	sig := tx.ID()

	rc, err := s.repomanager.Read().Receipts.Get(ctx, sig)
	switch {
	case err == nil:
		return rc, outcome(rc)
	case !errors.Is(err, common.ErrorNotFound):
		return nil, err
	}

	op, _ := tx.Instruction.Operation()
	keys := append([]address.Address{address.Derive(txLockSeed, tx.Signature)}, tx.Instruction.Accounts...)

	err = s.repomanager.InTx(ctx, func(ctx context.Context, r repomanager.Repositories) error {
		if err := r.Accounts.Lock(ctx, keys); err != nil {
			return err
		}

		// a concurrent submission of the same payload may have won the lock
		existing, err := r.Receipts.Get(ctx, sig)
		if err == nil {
			rc = existing
			return nil
		}
		if !errors.Is(err, common.ErrorNotFound) {
			return err
		}

		st := newStagedStore(r.Accounts, tx.Instruction.Accounts)
		inv := program.Invocation{Signer: tx.Signer, Instruction: tx.Instruction, Now: s.now()}

		rc = &models.Receipt{Signature: sig, Signer: tx.Signer, Operation: op}
		if execErr := s.program.Execute(ctx, st, inv); execErr != nil {
			pe, ok := program.AsError(execErr)
			if !ok {
				return execErr
			}
			rc.ErrCode = pe.Code
			rc.ErrMessage = execErr.Error()
		} else if err := st.flush(ctx); err != nil {
			return err
		}

		rc, err = r.Receipts.Create(ctx, rc)
		return err
	})
	if err != nil {
		s.logger.Error(ctx, "apply failed", "signature", sig, "error", err)
		return nil, err
	}

	if rc.Failed() {
		s.logger.Info(ctx, "transaction rejected", "signature", sig, "operation", op, "error", rc.ErrMessage)
	} else {
		s.logger.Info(ctx, "transaction applied", "signature", sig, "operation", op, "sequence", rc.Sequence)
	}
	return rc, outcome(rc)
}

// GetAccount returns common.ErrorNotFound for accounts never written.
func (s *LedgerService) GetAccount(ctx context.Context, addr address.Address) (*program.Account, error) {
	return s.repomanager.Read().Accounts.Get(ctx, addr)
}

// outcome turns a failed receipt back into its program error.
func outcome(rc *models.Receipt) error {
	if !rc.Failed() {
		return nil
	}
	pe, ok := program.ErrorByCode(rc.ErrCode)
	if !ok {
		return fmt.Errorf("%w: receipt carries unknown error code %d", common.ErrorInternal, rc.ErrCode)
	}
	return fmt.Errorf("%w: %s", pe, rc.ErrMessage)
}

// stagedStore is the program.Store of one apply. Reads see staged writes
// first; nothing reaches the repository until flush. Only the accounts the
// instruction declared may be touched.
type stagedStore struct {
	repo    accounts.Repository
	allowed map[address.Address]struct{}
	writes  map[address.Address]*program.Account
}

func newStagedStore(repo accounts.Repository, declared []address.Address) *stagedStore {
	allowed := make(map[address.Address]struct{}, len(declared))
	for _, a := range declared {
		allowed[a] = struct{}{}
	}
	return &stagedStore{repo: repo, allowed: allowed, writes: make(map[address.Address]*program.Account)}
}

func (s *stagedStore) check(addr address.Address) error {
	if _, ok := s.allowed[addr]; !ok {
		return fmt.Errorf("%w: %s was not declared", program.ErrInvalidAccount, addr)
	}
	return nil
}

func (s *stagedStore) Get(ctx context.Context, addr address.Address) (*program.Account, error) {
	if err := s.check(addr); err != nil {
		return nil, err
	}
	if acc, ok := s.writes[addr]; ok {
		cp := *acc
		cp.Data = append([]byte(nil), acc.Data...)
		return &cp, nil
	}
	return s.repo.Get(ctx, addr)
}

func (s *stagedStore) Put(_ context.Context, acc *program.Account) error {
	if err := s.check(acc.Address); err != nil {
		return err
	}
	cp := *acc
	cp.Data = append([]byte(nil), acc.Data...)
	s.writes[acc.Address] = &cp
	return nil
}

func (s *stagedStore) flush(ctx context.Context) error {
	addrs := make([]address.Address, 0, len(s.writes))
	for a := range s.writes {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return bytes.Compare(addrs[i][:], addrs[j][:]) < 0 })
	for _, a := range addrs {
		if err := s.repo.Upsert(ctx, s.writes[a]); err != nil {
			return err
		}
	}
	return nil
}
