package slots

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewPool_RejectsZeroCapacity(t *testing.T) {
	if _, err := NewPool(0); err == nil {
		t.Fatalf("NewPool(0) expected error")
	}
}

func TestPool_BoundsConcurrentHolders(t *testing.T) {
	pool, err := NewPool(2)
	if err != nil {
		t.Fatalf("NewPool() err=%v", err)
	}

	var active, peak int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			slot, err := pool.Acquire(context.Background())
			if err != nil {
				t.Errorf("Acquire() err=%v", err)
				return
			}
			defer slot.Release()

			n := atomic.AddInt64(&active, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt64(&active, -1)
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt64(&peak); got > 2 {
		t.Fatalf("peak holders=%d, want <= 2", got)
	}
}

func TestPool_AcquireHonorsDeadline(t *testing.T) {
	pool, err := NewPool(1)
	if err != nil {
		t.Fatalf("NewPool() err=%v", err)
	}

	held, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() err=%v", err)
	}
	defer held.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = pool.Acquire(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Acquire() err=%v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Acquire() blocked %v past deadline", elapsed)
	}
}

func TestSlot_ReleaseIsIdempotent(t *testing.T) {
	pool, err := NewPool(1)
	if err != nil {
		t.Fatalf("NewPool() err=%v", err)
	}

	slot, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() err=%v", err)
	}
	slot.Release()
	slot.Release()

	// A double release must not mint an extra slot.
	first, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() err=%v", err)
	}
	defer first.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := pool.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Acquire() err=%v, want deadline exceeded", err)
	}
}

func TestSlot_NilReleaseIsSafe(t *testing.T) {
	var slot *Slot
	slot.Release()
}
