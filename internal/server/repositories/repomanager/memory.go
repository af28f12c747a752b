package repomanager

import (
	"context"
	"sync"
	"time"

	"github.com/mirokugang/mukon/internal/address"
	"github.com/mirokugang/mukon/internal/common"
	"github.com/mirokugang/mukon/internal/program"
	"github.com/mirokugang/mukon/internal/server/models"
)

// MemoryRepositoryManager keeps accounts and receipts in process memory.
// InTx holds one exclusive lock for the whole unit of work and stages writes
// until fn succeeds.
type MemoryRepositoryManager struct {
	mu       sync.RWMutex
	accounts map[address.Address]program.Account
	receipts map[string]models.Receipt
	seq      int64
	now      func() time.Time
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{
		accounts: make(map[address.Address]program.Account),
		receipts: make(map[string]models.Receipt),
		now:      time.Now,
	}
}

func (m *MemoryRepositoryManager) RunMigrations(context.Context) error { return nil }

func (m *MemoryRepositoryManager) Close() error { return nil }

func (m *MemoryRepositoryManager) Read() Repositories {
	return Repositories{
		Accounts: &memAccounts{m: m, shared: true},
		Receipts: &memReceipts{m: m, shared: true},
	}
}

func (m *MemoryRepositoryManager) InTx(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc := &memAccounts{m: m, staged: make(map[address.Address]program.Account)}
	rcp := &memReceipts{m: m, seq: m.seq}
	if err := fn(ctx, Repositories{Accounts: acc, Receipts: rcp}); err != nil {
		return err
	}

	for addr, a := range acc.staged {
		m.accounts[addr] = a
	}
	for _, rc := range rcp.staged {
		m.receipts[rc.Signature] = rc
	}
	m.seq = rcp.seq
	return nil
}

// A shared view reads and writes committed state under the manager's lock; a
// transactional view overlays staged writes and relies on the lock InTx holds.
type memAccounts struct {
	m      *MemoryRepositoryManager
	shared bool
	staged map[address.Address]program.Account
}

func (r *memAccounts) Lock(context.Context, []address.Address) error { return nil }

func (r *memAccounts) Get(_ context.Context, addr address.Address) (*program.Account, error) {
	if r.shared {
		r.m.mu.RLock()
		defer r.m.mu.RUnlock()
	} else if a, ok := r.staged[addr]; ok {
		return cloneAccount(a), nil
	}
	a, ok := r.m.accounts[addr]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return cloneAccount(a), nil
}

func (r *memAccounts) Upsert(_ context.Context, a *program.Account) error {
	if r.shared {
		r.m.mu.Lock()
		defer r.m.mu.Unlock()
		r.m.accounts[a.Address] = *cloneAccount(*a)
		return nil
	}
	r.staged[a.Address] = *cloneAccount(*a)
	return nil
}

type memReceipts struct {
	m      *MemoryRepositoryManager
	shared bool
	staged []models.Receipt
	seq    int64
}

func (r *memReceipts) Get(_ context.Context, signature string) (*models.Receipt, error) {
	if r.shared {
		r.m.mu.RLock()
		defer r.m.mu.RUnlock()
	}
	for i := range r.staged {
		if r.staged[i].Signature == signature {
			rc := r.staged[i]
			return &rc, nil
		}
	}
	rc, ok := r.m.receipts[signature]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &rc, nil
}

func (r *memReceipts) Create(_ context.Context, rc *models.Receipt) (*models.Receipt, error) {
	if r.shared {
		r.m.mu.Lock()
		defer r.m.mu.Unlock()
		r.m.seq++
		rc.Sequence = r.m.seq
		rc.ProcessedAt = r.m.now().UTC()
		r.m.receipts[rc.Signature] = *rc
		return rc, nil
	}
	r.seq++
	rc.Sequence = r.seq
	rc.ProcessedAt = r.m.now().UTC()
	r.staged = append(r.staged, *rc)
	return rc, nil
}

func cloneAccount(a program.Account) *program.Account {
	a.Data = append([]byte(nil), a.Data...)
	return &a
}
