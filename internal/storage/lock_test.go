package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"fileswap/internal/model"
)

func TestKeyedLockSerializes(t *testing.T) {
	locks := NewKeyedLock()
	key := model.PairKey("TOKA/TOKB")
	ctx := context.Background()

	const workers = 20
	var inside, peak, counter int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := locks.Acquire(ctx, key); err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > peak {
				peak = inside
			}
			counter++
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			locks.Release(key)
		}()
	}
	wg.Wait()

	if peak != 1 {
		t.Fatalf("lock admitted %d holders at once", peak)
	}
	if counter != workers {
		t.Fatalf("expected %d critical sections, got %d", workers, counter)
	}
}

func TestKeyedLockIndependentKeys(t *testing.T) {
	locks := NewKeyedLock()
	ctx := context.Background()

	if err := locks.Acquire(ctx, "TOKA/TOKB"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	// A different pool must not block.
	done := make(chan struct{})
	go func() {
		if err := locks.Acquire(ctx, "TOKC/TOKD"); err != nil {
			t.Errorf("acquire other key: %v", err)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("independent key blocked")
	}
	locks.Release("TOKA/TOKB")
	locks.Release("TOKC/TOKD")
}

func TestKeyedLockCancelledWaiter(t *testing.T) {
	locks := NewKeyedLock()
	key := model.PairKey("TOKA/TOKB")

	if err := locks.Acquire(context.Background(), key); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := locks.Acquire(ctx, key); err == nil {
		t.Fatalf("expected cancellation error")
	}

	// The holder can still release and the lock remains usable.
	locks.Release(key)
	if err := locks.Acquire(context.Background(), key); err != nil {
		t.Fatalf("reacquire after cancel: %v", err)
	}
	locks.Release(key)
}
