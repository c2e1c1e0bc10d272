// Package accounts persists accounts: credentials, the per-account refresh
// secret and email verification state.
package accounts

import (
	"context"

	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/google/uuid"
)

// Repository is the storage contract used by the session service.
//
// Lookups return common.ErrorNotFound when no account matches.
type Repository interface {
	// Create inserts a new account and fills in ID and CreatedAt.
	// It returns common.ErrEmailTaken if the email is already registered.
	Create(ctx context.Context, account *models.Account) (*models.Account, error)

	GetByID(ctx context.Context, id int64) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByRefreshToken(ctx context.Context, token string) (*models.Account, error)

	// SetRefreshTokenIfEmpty stores token only when the account has none yet
	// and reports whether it did.
	SetRefreshTokenIfEmpty(ctx context.Context, id int64, token string) (bool, error)

	UpdatePasswordHash(ctx context.Context, id int64, hash string) error

	// MarkVerified flips an unverified account matching token to verified.
	// It returns common.ErrUnknownVerificationToken when nothing matched,
	// including a token that was already used.
	MarkVerified(ctx context.Context, token uuid.UUID) error
}
