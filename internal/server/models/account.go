// Package models defines server-side data models persisted in the database.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Account is a registered identity. PasswordHash is nil for accounts
// provisioned through a federated provider; RefreshToken is nil until the
// first successful login.
type Account struct {
	ID                int64
	Name              string
	Email             string
	PasswordHash      *string
	RefreshToken      *string
	Verified          bool
	VerificationToken uuid.UUID
	PictureURL        *string
	CreatedAt         time.Time
}

// HasPassword reports whether the account can log in with a local password.
func (a *Account) HasPassword() bool {
	return a.PasswordHash != nil && *a.PasswordHash != ""
}

// Clone returns a deep copy.
func (a *Account) Clone() *Account {
	c := *a
	c.PasswordHash = cloneString(a.PasswordHash)
	c.RefreshToken = cloneString(a.RefreshToken)
	c.PictureURL = cloneString(a.PictureURL)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
