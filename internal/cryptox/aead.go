package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
)

// ErrDecrypt is returned for any ciphertext that does not authenticate.
var ErrDecrypt = errors.New("cryptox: message authentication failed")

// AEAD seals and opens messages with AES-256-GCM. The random nonce is
// prepended to the ciphertext.
type AEAD struct {
	gcm cipher.AEAD
}

// NewAEAD builds an AEAD from a 16, 24 or 32 byte key.
func NewAEAD(key []byte) (*AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AEAD{gcm: gcm}, nil
}

// Seal encrypts plaintext, authenticating additionalData alongside it.
// The result is nonce || ciphertext || tag.
func (a *AEAD) Seal(plaintext, additionalData []byte) ([]byte, error) {
	nonce := make([]byte, a.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return a.gcm.Seal(nonce, nonce, plaintext, additionalData), nil
}

// Open reverses Seal. Truncated, tampered or foreign-keyed input yields
// ErrDecrypt.
func (a *AEAD) Open(sealed, additionalData []byte) ([]byte, error) {
	ns := a.gcm.NonceSize()
	if len(sealed) < ns+a.gcm.Overhead() {
		return nil, ErrDecrypt
	}
	plaintext, err := a.gcm.Open(nil, sealed[:ns], sealed[ns:], additionalData)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}
