package storage

import (
	"context"
	"sync"

	"fileswap/internal/model"
)

// KeyedLock provides one exclusive lock per pool key. A waiter blocks until
// the holder releases or the waiter's context is cancelled; cancellation
// simply withdraws the request without touching the lock.
type KeyedLock struct {
	mu   sync.Mutex
	held map[model.PairKey]chan struct{}
}

// NewKeyedLock returns an empty lock table.
func NewKeyedLock() *KeyedLock {
	return &KeyedLock{held: make(map[model.PairKey]chan struct{})}
}

// Acquire blocks until the key's lock is granted or ctx is done.
func (l *KeyedLock) Acquire(ctx context.Context, key model.PairKey) error {
	for {
		l.mu.Lock()
		released, busy := l.held[key]
		if !busy {
			l.held[key] = make(chan struct{})
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-released:
			// Holder released; race for the lock again.
		}
	}
}

// Release frees the key's lock and wakes all waiters.
func (l *KeyedLock) Release(key model.PairKey) {
	l.mu.Lock()
	released, busy := l.held[key]
	delete(l.held, key)
	l.mu.Unlock()
	if busy {
		close(released)
	}
}
