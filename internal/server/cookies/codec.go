// Package cookies carries session material in encrypted, authenticated
// cookies. A cookie value is base64url(nonce || AES-256-GCM ciphertext) with
// the cookie name bound as associated data, so a value lifted from one
// cookie does not decode under another name.
package cookies

import (
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/cryptox"
)

const (
	AccessTokenName  = "access_token"
	RefreshTokenName = "refresh_token"
	OAuthStateName   = "oauth_state"

	AccessPath   = "/"
	RefreshPath  = "/auth/refresh"
	CallbackPath = "/auth/google/callback"

	DefaultStateTTL = 10 * time.Minute
)

var encoding = base64.RawURLEncoding

// Codec is safe for concurrent use.
type Codec struct {
	aead       *cryptox.AEAD
	accessTTL  time.Duration
	refreshTTL time.Duration
	stateTTL   time.Duration
	now        func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithStateTTL sets the lifetime of the OAuth state cookie. The default is
// DefaultStateTTL.
func WithStateTTL(ttl time.Duration) Option {
	return func(c *Codec) { c.stateTTL = ttl }
}

// WithClock replaces time.Now when computing cookie expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// NewCodec builds a codec from a 32-byte cookie-encryption key.
func NewCodec(key []byte, accessTTL, refreshTTL time.Duration, opts ...Option) (*Codec, error) {
	if len(key) != cryptox.KeySize {
		return nil, errors.New("cookies: key must be 32 bytes")
	}
	aead, err := cryptox.NewAEAD(key)
	if err != nil {
		return nil, err
	}

	c := &Codec{
		aead:       aead,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		stateTTL:   DefaultStateTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Encode encrypts value into a cookie named name.
func (c *Codec) Encode(name, value string, ttl time.Duration, path string) (*http.Cookie, error) {
	sealed, err := c.aead.Seal([]byte(value), []byte(name))
	if err != nil {
		return nil, err
	}

	return &http.Cookie{
		Name:     name,
		Value:    encoding.EncodeToString(sealed),
		Path:     path,
		MaxAge:   int(ttl / time.Second),
		Expires:  c.now().Add(ttl).UTC(),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

// Decode returns the plaintext of the named cookie. It reports false for a
// missing cookie and for any value that does not decrypt under this key and
// name.
func (c *Codec) Decode(r *http.Request, name string) (string, bool) {
	ck, err := r.Cookie(name)
	if err != nil {
		return "", false
	}
	return c.DecodeValue(name, ck.Value)
}

// DecodeValue decrypts a raw cookie value that was issued under name.
func (c *Codec) DecodeValue(name, value string) (string, bool) {
	if value == "" {
		return "", false
	}
	sealed, err := encoding.DecodeString(value)
	if err != nil {
		return "", false
	}
	plain, err := c.aead.Open(sealed, []byte(name))
	if err != nil {
		return "", false
	}
	return string(plain), true
}

// AccessCookie wraps an access token for every path on the site.
func (c *Codec) AccessCookie(token string) (*http.Cookie, error) {
	return c.Encode(AccessTokenName, token, c.accessTTL, AccessPath)
}

// RefreshCookie wraps a refresh secret; browsers send it only to RefreshPath.
func (c *Codec) RefreshCookie(secret string) (*http.Cookie, error) {
	return c.Encode(RefreshTokenName, secret, c.refreshTTL, RefreshPath)
}

// StateCookie wraps the OAuth CSRF state for the callback round trip.
func (c *Codec) StateCookie(state string) (*http.Cookie, error) {
	return c.Encode(OAuthStateName, state, c.stateTTL, CallbackPath)
}

// Expire returns a cookie that makes the browser drop name at path.
func (c *Codec) Expire(name, path string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}
