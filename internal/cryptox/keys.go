// Package cryptox holds the small cryptographic building blocks shared by
// the server: purpose-bound subkey derivation and AES-GCM sealing.
package cryptox

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Key purposes. Every consumer of the root secret derives its own subkey so
// that a key leaked from one use does not unlock the others.
const (
	PurposePasswordPepper   = "gophauth/password-pepper/v1"
	PurposeCookieEncryption = "gophauth/cookie-encryption/v1"
	PurposeTokenSigning     = "gophauth/token-signing/v1"
)

// KeySize is the length of every derived subkey (AES-256 / HS256).
const KeySize = 32

// minRootSecretLen is the shortest root secret accepted.
const minRootSecretLen = 32

// ErrWeakRootSecret is returned by DeriveKeys for a short root secret.
var ErrWeakRootSecret = fmt.Errorf("root secret must be at least %d bytes", minRootSecretLen)

// DeriveKey expands root into a KeySize subkey bound to purpose with
// HKDF-SHA256.
func DeriveKey(root []byte, purpose string) ([]byte, error) {
	if len(root) < minRootSecretLen {
		return nil, ErrWeakRootSecret
	}
	if purpose == "" {
		return nil, errors.New("key purpose is required")
	}

	key := make([]byte, KeySize)
	r := hkdf.New(sha256.New, root, nil, []byte(purpose))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("hkdf expand: %w", err)
	}
	return key, nil
}

// Keys bundles the subkeys derived from a single root secret.
type Keys struct {
	PasswordPepper   []byte
	CookieEncryption []byte
	TokenSigning     []byte
}

// DeriveKeys derives one subkey per purpose from root.
func DeriveKeys(root []byte) (*Keys, error) {
	pepper, err := DeriveKey(root, PurposePasswordPepper)
	if err != nil {
		return nil, err
	}
	cookie, err := DeriveKey(root, PurposeCookieEncryption)
	if err != nil {
		return nil, err
	}
	signing, err := DeriveKey(root, PurposeTokenSigning)
	if err != nil {
		return nil, err
	}
	return &Keys{PasswordPepper: pepper, CookieEncryption: cookie, TokenSigning: signing}, nil
}
