package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/credentials"
	"github.com/dmitrijs2005/gophauth/internal/server/federation"
	"github.com/dmitrijs2005/gophauth/internal/server/mailer"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophauth/internal/server/tokens"
	"github.com/dmitrijs2005/gophauth/internal/server/workpool"
	"github.com/stretchr/testify/require"
)

var errMailDown = errors.New("mail api down")

type fakeMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) messages() []mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mailer.Message(nil), m.sent...)
}

var cheapParams = credentials.Params{Memory: 64, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

type testEnv struct {
	svc    *SessionService
	mail   *fakeMailer
	hasher *credentials.Hasher
	issuer *tokens.Issuer
}

func newTestEnv(t *testing.T, store repomanager.Store, provider *federation.Provider) *testEnv {
	t.Helper()

	hasher, err := credentials.NewHasher([]byte("0123456789abcdef-pepper"), cheapParams)
	require.NoError(t, err)

	issuer := tokens.NewIssuer([]byte("0123456789abcdef0123456789abcdef"), "gophauth", "gophauth-clients", 15*time.Minute)
	mail := &fakeMailer{}

	svc := NewSessionService(SessionDeps{
		Store:    store,
		Hasher:   hasher,
		Issuer:   issuer,
		Mailer:   mail,
		Pool:     workpool.New(2),
		Provider: provider,
		BaseURL:  "http://auth.test",
		Logger:   logging.Nop(),
	})
	return &testEnv{svc: svc, mail: mail, hasher: hasher, issuer: issuer}
}

// countingHasher records every call made to the wrapped hasher.
type countingHasher struct {
	PasswordHasher

	mu       sync.Mutex
	hashes   int
	verifies []string
}

func (c *countingHasher) Hash(password string) (string, error) {
	c.mu.Lock()
	c.hashes++
	c.mu.Unlock()
	return c.PasswordHasher.Hash(password)
}

func (c *countingHasher) Verify(password, encoded string) bool {
	c.mu.Lock()
	c.verifies = append(c.verifies, encoded)
	c.mu.Unlock()
	return c.PasswordHasher.Verify(password, encoded)
}

func (c *countingHasher) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hashes = 0
	c.verifies = nil
}

// withCountingHasher swaps the service's hasher for a counting wrapper.
func (e *testEnv) withCountingHasher() *countingHasher {
	c := &countingHasher{PasswordHasher: e.hasher}
	e.svc.hasher = c
	return c
}
