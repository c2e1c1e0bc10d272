// Package workpool bounds how many CPU-heavy jobs (password hashing, token
// signing) run at once. Callers block until a slot frees up or their context
// ends.
package workpool

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Pool bounds how many functions run at once.
type Pool struct {
	sem  *semaphore.Weighted
	size int64
}

// New returns a pool with size slots; size <= 0 means GOMAXPROCS.
func New(size int) *Pool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: int64(size)}
}

// Size returns the number of slots.
func (p *Pool) Size() int { return int(p.size) }

// Do runs fn once a slot is available. A panic in fn is returned as an
// error.
func (p *Pool) Do(ctx context.Context, fn func() error) (err error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("workpool: job panicked: %v", r)
		}
	}()
	return fn()
}

// Run is Do for jobs that produce a value.
func Run[T any](ctx context.Context, p *Pool, fn func() (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}
