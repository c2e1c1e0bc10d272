package accounts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/google/uuid"
)

// MemoryTable is an in-process accounts table with the same uniqueness rules
// as the SQL schema (email, refresh_token, verification_token). It is not
// safe for concurrent use; the owning store serializes access.
type MemoryTable struct {
	rows   map[int64]*models.Account
	nextID int64
}

// NewMemoryTable returns an empty table.
func NewMemoryTable() *MemoryTable {
	return &MemoryTable{rows: make(map[int64]*models.Account), nextID: 1}
}

// Clone returns a deep copy used as a transaction's working set.
func (t *MemoryTable) Clone() *MemoryTable {
	c := &MemoryTable{rows: make(map[int64]*models.Account, len(t.rows)), nextID: t.nextID}
	for id, a := range t.rows {
		c.rows[id] = a.Clone()
	}
	return c
}

func (t *MemoryTable) Len() int { return len(t.rows) }

// MemoryRepository implements Repository over a MemoryTable.
type MemoryRepository struct {
	table *MemoryTable
}

// NewMemoryRepository returns a repository that reads and writes table in place.
func NewMemoryRepository(table *MemoryTable) *MemoryRepository {
	return &MemoryRepository{table: table}
}

func (r *MemoryRepository) find(match func(a *models.Account) bool) (*models.Account, bool) {
	for _, a := range r.table.rows {
		if match(a) {
			return a, true
		}
	}
	return nil, false
}

func (r *MemoryRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, ok := r.find(func(a *models.Account) bool { return a.Email == account.Email }); ok {
		return nil, common.ErrEmailTaken
	}

	account.ID = r.table.nextID
	account.CreatedAt = time.Now().UTC()
	r.table.nextID++
	r.table.rows[account.ID] = account.Clone()

	return account, nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a, ok := r.table.rows[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return a.Clone(), nil
}

func (r *MemoryRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a, ok := r.find(func(a *models.Account) bool { return a.Email == email })
	if !ok {
		return nil, common.ErrorNotFound
	}
	return a.Clone(), nil
}

func (r *MemoryRepository) GetByRefreshToken(ctx context.Context, token string) (*models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a, ok := r.find(func(a *models.Account) bool { return a.RefreshToken != nil && *a.RefreshToken == token })
	if !ok {
		return nil, common.ErrorNotFound
	}
	return a.Clone(), nil
}

func (r *MemoryRepository) SetRefreshTokenIfEmpty(ctx context.Context, id int64, token string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	a, ok := r.table.rows[id]
	if !ok || a.RefreshToken != nil {
		return false, nil
	}
	if _, taken := r.find(func(o *models.Account) bool { return o.RefreshToken != nil && *o.RefreshToken == token }); taken {
		return false, common.ErrorInternal
	}
	a.RefreshToken = &token
	return true, nil
}

func (r *MemoryRepository) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a, ok := r.table.rows[id]
	if !ok {
		return common.ErrorNotFound
	}
	a.PasswordHash = &hash
	return nil
}

func (r *MemoryRepository) MarkVerified(ctx context.Context, token uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a, ok := r.find(func(a *models.Account) bool { return a.VerificationToken == token && !a.Verified })
	if !ok {
		return common.ErrUnknownVerificationToken
	}
	a.Verified = true
	return nil
}
