// Package tokens issues and validates signed session (access) tokens and
// mints refresh secrets.
package tokens

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// RefreshSecretLength is the length of a refresh secret in characters.
const RefreshSecretLength = 32

const subjectPrefix = "user-"

// Claims is the JWT payload. Standard claims use their registered names;
// the user id is duplicated as "userId". The audience is a single string
// and shadows the array form of the embedded RegisteredClaims.
type Claims struct {
	jwt.RegisteredClaims
	Audience string `json:"aud"`
	UserID   int64  `json:"userId"`
}

// GetAudience lets jwt.WithAudience check the single-string audience.
func (c Claims) GetAudience() (jwt.ClaimStrings, error) {
	if c.Audience == "" {
		return nil, nil
	}
	return jwt.ClaimStrings{c.Audience}, nil
}

// Issuer signs access tokens with HS256. It is safe for concurrent use.
type Issuer struct {
	key      []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
	parser   *jwt.Parser
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// NewIssuer returns an Issuer signing with key. Tokens carry issuer and
// audience and expire after ttl; Validate requires the same issuer and
// audience.
func NewIssuer(key []byte, issuer, audience string, ttl time.Duration, opts ...Option) *Issuer {
	i := &Issuer{
		key:      append([]byte(nil), key...),
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}

	i.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return i.now() }),
	)
	return i
}

// TTL is the access token lifetime.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Issue returns a signed token for userID valid for the configured TTL.
func (i *Issuer) Issue(userID int64) (string, error) {
	now := i.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   subjectPrefix + strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Audience: i.audience,
		UserID:   userID,
	})

	signed, err := token.SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// Validate checks signature, algorithm, expiry, issuer and audience and
// returns the user id. Any failure is common.ErrInvalidAccessToken.
func (i *Issuer) Validate(tokenString string) (int64, error) {
	claims := &Claims{}

	token, err := i.parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return i.key, nil
	})
	if err != nil || !token.Valid {
		return 0, common.ErrInvalidAccessToken
	}

	id, err := ParseSubject(claims.Subject)
	if err != nil || id != claims.UserID {
		return 0, common.ErrInvalidAccessToken
	}
	return claims.UserID, nil
}

// NewRefreshSecret returns a fresh RefreshSecretLength-character
// alphanumeric secret from crypto/rand.
func NewRefreshSecret() (string, error) {
	s, err := common.MakeRandAlphanumeric(RefreshSecretLength)
	if err != nil {
		return "", fmt.Errorf("generate refresh secret: %w", err)
	}
	return s, nil
}

// ErrMalformedSubject is returned by ParseSubject.
var ErrMalformedSubject = errors.New("tokens: malformed subject")

// ParseSubject extracts the user id from a "user-<id>" subject.
func ParseSubject(sub string) (int64, error) {
	rest, ok := strings.CutPrefix(sub, subjectPrefix)
	if !ok {
		return 0, ErrMalformedSubject
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrMalformedSubject
	}
	return id, nil
}
