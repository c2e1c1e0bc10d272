package repomanager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/accounts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAccount(email string) *models.Account {
	return &models.Account{Name: "N", Email: email, VerificationToken: uuid.New()}
}

func TestMemoryStore_WithTx_CommitsOnSuccess(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	err := s.WithTx(ctx, func(ctx context.Context, repo accounts.Repository) error {
		_, err := repo.Create(ctx, newAccount("a@example.com"))
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())

	_, err = s.Accounts().GetByEmail(ctx, "a@example.com")
	assert.NoError(t, err)
}

func TestMemoryStore_WithTx_RollsBackOnError(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	err := s.WithTx(ctx, func(ctx context.Context, repo accounts.Repository) error {
		if _, err := repo.Create(ctx, newAccount("a@example.com")); err != nil {
			return err
		}
		return errors.New("mail delivery failed")
	})
	require.Error(t, err)
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStore_WithTx_RollsBackOnPanic(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = s.WithTx(ctx, func(ctx context.Context, repo accounts.Repository) error {
			_, _ = repo.Create(ctx, newAccount("a@example.com"))
			panic("kaput")
		})
	})
	assert.Equal(t, 0, s.Len())

	_, err := s.Accounts().Create(ctx, newAccount("b@example.com"))
	assert.NoError(t, err, "the store must be unlocked after a panic")
}

func TestMemoryStore_WithTx_CanceledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.WithTx(ctx, func(ctx context.Context, repo accounts.Repository) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestMemoryStore_ConcurrentCreateSameEmail(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const n = 16
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		taken int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithTx(ctx, func(ctx context.Context, repo accounts.Repository) error {
				_, err := repo.Create(ctx, newAccount("race@example.com"))
				return err
			})
			if errors.Is(err, common.ErrEmailTaken) {
				mu.Lock()
				taken++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, s.Len())
	assert.Equal(t, n-1, taken)
}

func TestMemoryStore_ReadsDoNotWaitForOpenTx(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Accounts().Create(ctx, newAccount("old@example.com"))
	require.NoError(t, err)

	inTx := make(chan struct{})
	release := make(chan struct{})
	txDone := make(chan error, 1)
	go func() {
		txDone <- s.WithTx(ctx, func(ctx context.Context, repo accounts.Repository) error {
			if _, err := repo.Create(ctx, newAccount("new@example.com")); err != nil {
				return err
			}
			close(inTx)
			<-release // stands in for a slow mail send
			return nil
		})
	}()
	<-inTx

	read := make(chan error, 1)
	go func() {
		_, err := s.Accounts().GetByEmail(ctx, "old@example.com")
		read <- err
	}()
	select {
	case err := <-read:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("read blocked behind an open transaction")
	}

	_, err = s.Accounts().GetByEmail(ctx, "new@example.com")
	assert.ErrorIs(t, err, common.ErrorNotFound, "staged rows stay invisible until commit")

	wrote := make(chan error, 1)
	go func() {
		_, err := s.Accounts().Create(ctx, newAccount("later@example.com"))
		wrote <- err
	}()
	select {
	case <-wrote:
		t.Fatal("write overtook an open transaction")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-txDone)
	require.NoError(t, <-wrote)
	assert.Equal(t, 3, s.Len())
}
