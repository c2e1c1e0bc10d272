package repomanager

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/accounts"
	"github.com/google/uuid"
)

// MemoryStore implements Store in process memory.
//
// Writers are serialized by txMu: a transaction holds it for its whole
// duration, including any mail sent from inside fn, and works on a staged
// copy of the table that replaces the live one only on success. mu guards
// the live table pointer and is held only for single reads, single writes
// and the final swap, so lookups never wait behind a transaction.
type MemoryStore struct {
	txMu  sync.Mutex
	mu    sync.RWMutex
	table *accounts.MemoryTable
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{table: accounts.NewMemoryTable()}
}

// Len returns the number of stored accounts.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table.Len()
}

// Accounts returns a repository whose calls each run on the live table.
func (s *MemoryStore) Accounts() accounts.Repository {
	return &lockedRepository{s: s}
}

// WithTx runs fn against a staged copy of the table and publishes it if fn
// returns nil.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, repo accounts.Repository) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	staged := s.table.Clone()
	s.mu.RUnlock()

	if err := fn(ctx, accounts.NewMemoryRepository(staged)); err != nil {
		return err
	}

	s.mu.Lock()
	s.table = staged
	s.mu.Unlock()
	return nil
}

// lockedRepository runs each call as its own short transaction. Writes also
// take txMu so they cannot be lost under a concurrent WithTx swap.
type lockedRepository struct {
	s *MemoryStore
}

func (r *lockedRepository) read() (accounts.Repository, func()) {
	r.s.mu.RLock()
	return accounts.NewMemoryRepository(r.s.table), r.s.mu.RUnlock
}

func (r *lockedRepository) write() (accounts.Repository, func()) {
	r.s.txMu.Lock()
	r.s.mu.Lock()
	return accounts.NewMemoryRepository(r.s.table), func() {
		r.s.mu.Unlock()
		r.s.txMu.Unlock()
	}
}

func (r *lockedRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	repo, unlock := r.write()
	defer unlock()
	return repo.Create(ctx, account)
}

func (r *lockedRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	repo, unlock := r.read()
	defer unlock()
	return repo.GetByID(ctx, id)
}

func (r *lockedRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	repo, unlock := r.read()
	defer unlock()
	return repo.GetByEmail(ctx, email)
}

func (r *lockedRepository) GetByRefreshToken(ctx context.Context, token string) (*models.Account, error) {
	repo, unlock := r.read()
	defer unlock()
	return repo.GetByRefreshToken(ctx, token)
}

func (r *lockedRepository) SetRefreshTokenIfEmpty(ctx context.Context, id int64, token string) (bool, error) {
	repo, unlock := r.write()
	defer unlock()
	return repo.SetRefreshTokenIfEmpty(ctx, id, token)
}

func (r *lockedRepository) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	repo, unlock := r.write()
	defer unlock()
	return repo.UpdatePasswordHash(ctx, id, hash)
}

func (r *lockedRepository) MarkVerified(ctx context.Context, token uuid.UUID) error {
	repo, unlock := r.write()
	defer unlock()
	return repo.MarkVerified(ctx, token)
}
