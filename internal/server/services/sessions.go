// Package services contains server-side business logic. SessionService
// owns the credential and session lifecycle: signup, login, refresh,
// password change, email verification and federated login.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/credentials"
	"github.com/dmitrijs2005/gophauth/internal/server/federation"
	"github.com/dmitrijs2005/gophauth/internal/server/mailer"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophauth/internal/server/tokens"
	"github.com/dmitrijs2005/gophauth/internal/server/validation"
	"github.com/dmitrijs2005/gophauth/internal/server/workpool"
	"github.com/google/uuid"
)

// ErrFederationDisabled is returned by the federated login operations when
// no identity provider is configured.
var ErrFederationDisabled = errors.New("federated login is not configured")

// Mailer delivers outbound email.
type Mailer interface {
	Send(ctx context.Context, msg mailer.Message) error
}

// PasswordHasher hashes and verifies passwords. *credentials.Hasher
// implements it.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) bool
	MockHash() string
}

var _ PasswordHasher = (*credentials.Hasher)(nil)

// Session is the result of a successful authentication.
type Session struct {
	UserID       int64
	AccessToken  string
	RefreshToken string
}

// SignupRequest is the registration form.
type SignupRequest struct {
	Name     string
	Email    string
	Password string
}

// SessionDeps are the collaborators of SessionService. Provider may be nil.
type SessionDeps struct {
	Store    repomanager.Store
	Hasher   PasswordHasher
	Issuer   *tokens.Issuer
	Mailer   Mailer
	Pool     *workpool.Pool
	Provider *federation.Provider
	BaseURL  string
	Logger   logging.Logger
}

// SessionService runs the credential and session flows on top of a Store.
// CPU-heavy hashing and token work goes through the worker pool. It is safe
// for concurrent use.
type SessionService struct {
	store    repomanager.Store
	hasher   PasswordHasher
	issuer   *tokens.Issuer
	mailer   Mailer
	pool     *workpool.Pool
	provider *federation.Provider
	baseURL  string
	logger   logging.Logger
}

// NewSessionService builds a SessionService from its collaborators.
func NewSessionService(d SessionDeps) *SessionService {
	return &SessionService{
		store:    d.Store,
		hasher:   d.Hasher,
		issuer:   d.Issuer,
		mailer:   d.Mailer,
		pool:     d.Pool,
		provider: d.Provider,
		baseURL:  d.BaseURL,
		logger:   d.Logger.With("module", "sessions"),
	}
}

// Signup registers a local account and sends the verification email. The
// account row and the email succeed or fail together: if the email cannot
// be sent the insert is rolled back.
func (s *SessionService) Signup(ctx context.Context, req SignupRequest) error {
	if err := validation.Signup(req.Name, req.Email, req.Password); err != nil {
		return err
	}

	hash, err := workpool.Run(ctx, s.pool, func() (string, error) {
		return s.hasher.Hash(req.Password)
	})
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	verification := uuid.New()
	account := &models.Account{
		Name:              req.Name,
		Email:             req.Email,
		PasswordHash:      &hash,
		VerificationToken: verification,
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, repo accounts.Repository) error {
		if _, err := repo.Create(ctx, account); err != nil {
			return err
		}
		link := mailer.VerificationLink(s.baseURL, verification)
		if err := s.mailer.Send(ctx, mailer.VerificationMessage(req.Email, link)); err != nil {
			return fmt.Errorf("send verification email: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrEmailTaken) {
			s.logger.Warn(ctx, "signup rejected", "reason", err)
		}
		return err
	}

	s.logger.Info(ctx, "account registered", "user_id", account.ID)
	return nil
}

// Login checks the password and opens a session. Unknown emails and
// accounts without a local password are verified against the mock hash so
// every rejection costs one full hash evaluation.
func (s *SessionService) Login(ctx context.Context, email, password string) (*Session, error) {
	account, err := s.store.Accounts().GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("load account: %w", err)
	}

	encoded := s.hasher.MockHash()
	if account != nil && account.HasPassword() {
		encoded = *account.PasswordHash
	}

	ok, err := workpool.Run(ctx, s.pool, func() (bool, error) {
		return s.hasher.Verify(password, encoded), nil
	})
	if err != nil {
		return nil, err
	}
	if account == nil || !account.HasPassword() || !ok {
		s.logger.Warn(ctx, "login rejected", "reason", common.ErrInvalidCredentials)
		return nil, common.ErrInvalidCredentials
	}

	var secret string
	err = s.store.WithTx(ctx, func(ctx context.Context, repo accounts.Repository) error {
		var txErr error
		secret, txErr = ensureRefreshSecret(ctx, repo, account)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	return s.newSession(ctx, account.ID, secret)
}

// Refresh issues a new access token for the holder of a refresh secret. The
// secret itself is returned unchanged.
func (s *SessionService) Refresh(ctx context.Context, secret string) (*Session, error) {
	if secret == "" {
		return nil, common.ErrNoRefreshToken
	}

	account, err := s.store.Accounts().GetByRefreshToken(ctx, secret)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.logger.Warn(ctx, "refresh rejected", "reason", common.ErrInvalidRefreshToken)
			return nil, common.ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("load account: %w", err)
	}

	return s.newSession(ctx, account.ID, secret)
}

// ChangePassword replaces the password of userID after checking current.
func (s *SessionService) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	if err := validation.ChangePassword(next); err != nil {
		return err
	}

	account, err := s.store.Accounts().GetByID(ctx, userID)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return fmt.Errorf("load account: %w", err)
	}

	encoded := s.hasher.MockHash()
	if account != nil && account.HasPassword() {
		encoded = *account.PasswordHash
	}

	ok, err := workpool.Run(ctx, s.pool, func() (bool, error) {
		return s.hasher.Verify(current, encoded), nil
	})
	if err != nil {
		return err
	}
	if account == nil || !account.HasPassword() || !ok {
		s.logger.Warn(ctx, "password change rejected", "user_id", userID, "reason", common.ErrInvalidPassword)
		return common.ErrInvalidPassword
	}

	hash, err := workpool.Run(ctx, s.pool, func() (string, error) {
		return s.hasher.Hash(next)
	})
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.store.Accounts().UpdatePasswordHash(ctx, userID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	s.logger.Info(ctx, "password changed", "user_id", userID)
	return nil
}

// VerifyEmail consumes a verification token. A token can be used once.
func (s *SessionService) VerifyEmail(ctx context.Context, token uuid.UUID) error {
	if err := s.store.Accounts().MarkVerified(ctx, token); err != nil {
		if errors.Is(err, common.ErrUnknownVerificationToken) {
			s.logger.Warn(ctx, "verification rejected", "reason", err)
		}
		return err
	}
	return nil
}

// AuthorizationURL starts a federated login. The caller must keep state
// (in an encrypted cookie) and compare it on the callback.
func (s *SessionService) AuthorizationURL() (string, string, error) {
	if s.provider == nil {
		return "", "", ErrFederationDisabled
	}
	state, err := federation.NewState()
	if err != nil {
		return "", "", err
	}
	return s.provider.AuthorizationURL(state), state, nil
}

// OAuthCallback completes a federated login. An existing account with the
// same email is adopted whatever its verified state; otherwise a
// password-less account is provisioned with the provider's verified flag.
func (s *SessionService) OAuthCallback(ctx context.Context, code string) (*Session, error) {
	if s.provider == nil {
		return nil, ErrFederationDisabled
	}

	profile, err := s.provider.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}

	var (
		userID int64
		secret string
	)
	err = s.store.WithTx(ctx, func(ctx context.Context, repo accounts.Repository) error {
		account, err := repo.GetByEmail(ctx, profile.Email)
		if err != nil {
			if !errors.Is(err, common.ErrorNotFound) {
				return err
			}
			account, err = repo.Create(ctx, &models.Account{
				Name:              profile.Name,
				Email:             profile.Email,
				Verified:          profile.EmailVerified,
				VerificationToken: uuid.New(),
				PictureURL:        profile.PictureURL,
			})
			if err != nil {
				return err
			}
			s.logger.Info(ctx, "account provisioned", "user_id", account.ID, "provider", s.provider.Kind().String())
		}

		userID = account.ID
		secret, err = ensureRefreshSecret(ctx, repo, account)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrEmailTaken) {
			s.logger.Warn(ctx, "federated login rejected", "reason", err)
		}
		return nil, err
	}

	return s.newSession(ctx, userID, secret)
}

// Authenticate validates an access token and returns its user id.
func (s *SessionService) Authenticate(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, common.ErrNoAccessToken
	}
	id, err := workpool.Run(ctx, s.pool, func() (int64, error) {
		return s.issuer.Validate(token)
	})
	if err != nil {
		if errors.Is(err, common.ErrInvalidAccessToken) {
			s.logger.Warn(ctx, "access token rejected")
		}
		return 0, err
	}
	return id, nil
}

func (s *SessionService) newSession(ctx context.Context, userID int64, secret string) (*Session, error) {
	access, err := workpool.Run(ctx, s.pool, func() (string, error) {
		return s.issuer.Issue(userID)
	})
	if err != nil {
		return nil, err
	}
	return &Session{UserID: userID, AccessToken: access, RefreshToken: secret}, nil
}

// ensureRefreshSecret returns the account's refresh secret, minting one if
// it has none. Concurrent callers race on a conditional update; the loser
// reads back and returns the winner's secret.
func ensureRefreshSecret(ctx context.Context, repo accounts.Repository, account *models.Account) (string, error) {
	if account.RefreshToken != nil {
		return *account.RefreshToken, nil
	}

	secret, err := tokens.NewRefreshSecret()
	if err != nil {
		return "", err
	}

	stored, err := repo.SetRefreshTokenIfEmpty(ctx, account.ID, secret)
	if err != nil {
		return "", fmt.Errorf("store refresh secret: %w", err)
	}
	if stored {
		return secret, nil
	}

	current, err := repo.GetByID(ctx, account.ID)
	if err != nil {
		return "", fmt.Errorf("reload account: %w", err)
	}
	if current.RefreshToken == nil {
		return "", fmt.Errorf("refresh secret missing for account %d: %w", account.ID, common.ErrorInternal)
	}
	return *current.RefreshToken, nil
}
