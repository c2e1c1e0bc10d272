// Package common defines shared constants and sentinel errors used across
// gophauth layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal = errors.New("internal error")
)

// Authentication errors. Each one maps to a fixed status class at the
// transport boundary; their messages are safe to show to clients.
var (
	ErrEmailTaken               = errors.New("email is taken")
	ErrNoAccessToken            = errors.New("missing access token")
	ErrInvalidAccessToken       = errors.New("invalid access token")
	ErrNoRefreshToken           = errors.New("missing refresh token")
	ErrInvalidRefreshToken      = errors.New("invalid refresh token")
	ErrInvalidCredentials       = errors.New("invalid login or password")
	ErrInvalidPassword          = errors.New("invalid password")
	ErrUnknownVerificationToken = errors.New("unknown verification token")
)

// IsAuthError reports whether err is one of the expected, user-triggerable
// authentication errors (as opposed to an unexpected failure).
func IsAuthError(err error) bool {
	for _, target := range []error{
		ErrEmailTaken,
		ErrNoAccessToken,
		ErrInvalidAccessToken,
		ErrNoRefreshToken,
		ErrInvalidRefreshToken,
		ErrInvalidCredentials,
		ErrInvalidPassword,
		ErrUnknownVerificationToken,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
