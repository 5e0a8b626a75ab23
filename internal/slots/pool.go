// Package slots bounds how many transformations run at once. The pool
// is the only hard concurrency limit in the gateway: materialization
// and bookkeeping run unbounded, execution does not.
package slots

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

type Pool struct {
	capacity int
	sem      *semaphore.Weighted
}

func NewPool(capacity int) (*Pool, error) {
	if capacity < 1 {
		return nil, errors.New("slot capacity must be >= 1")
	}
	return &Pool{capacity: capacity, sem: semaphore.NewWeighted(int64(capacity))}, nil
}

func (p *Pool) Capacity() int {
	return p.capacity
}

// Acquire blocks the calling goroutine until a slot frees up or ctx
// ends. The returned slot must be released on every exit path; a
// leaked slot permanently shrinks the pool.
func (p *Pool) Acquire(ctx context.Context) (*Slot, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for execution slot: %w", err)
	}
	return &Slot{pool: p}, nil
}

// Slot is one execution permit. Release is safe to call more than once
// and on a nil slot.
type Slot struct {
	pool *Pool
	once sync.Once
}

func (s *Slot) Release() {
	if s == nil {
		return
	}
	s.once.Do(func() { s.pool.sem.Release(1) })
}
