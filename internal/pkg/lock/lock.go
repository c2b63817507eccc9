// Package lock provides per-key locking for read-check-write sequences
// such as daily bonus claims.
package lock

import (
	"context"
	"fmt"
	"sync"
)

// keyMutex is a one-slot semaphore so acquisition can be abandoned on
// context cancellation. refs counts holders and waiters.
type keyMutex struct {
	ch   chan struct{}
	refs int
}

// KeyLock provides per-key mutual exclusion. Entries are dropped once no
// goroutine holds or waits on them, so the key space may be unbounded.
type KeyLock struct {
	mu    sync.Mutex
	locks map[string]*keyMutex
}

// NewKeyLock creates a new KeyLock instance.
func NewKeyLock() *KeyLock {
	return &KeyLock{locks: make(map[string]*keyMutex)}
}

func (kl *KeyLock) acquire(key string) *keyMutex {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	m, ok := kl.locks[key]
	if !ok {
		m = &keyMutex{ch: make(chan struct{}, 1)}
		kl.locks[key] = m
	}
	m.refs++
	return m
}

func (kl *KeyLock) release(key string, m *keyMutex) {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	m.refs--
	if m.refs == 0 {
		delete(kl.locks, key)
	}
}

// Lock blocks until the key is held or ctx is done.
// On cancellation the returned error wraps both ErrLockTimeout and ctx.Err().
func (kl *KeyLock) Lock(ctx context.Context, key string) error {
	m := kl.acquire(key)
	select {
	case m.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		kl.release(key, m)
		return fmt.Errorf("%w: %w", ErrLockTimeout, ctx.Err())
	}
}

// TryLock acquires the key without blocking.
func (kl *KeyLock) TryLock(key string) bool {
	m := kl.acquire(key)
	select {
	case m.ch <- struct{}{}:
		return true
	default:
		kl.release(key, m)
		return false
	}
}

// Unlock releases a key held by Lock or TryLock.
// Unlocking a key that is not held panics, like sync.Mutex.
func (kl *KeyLock) Unlock(key string) {
	kl.mu.Lock()
	m, ok := kl.locks[key]
	kl.mu.Unlock()
	if !ok {
		panic("lock: unlock of unlocked key " + key)
	}

	select {
	case <-m.ch:
	default:
		panic("lock: unlock of unlocked key " + key)
	}
	kl.release(key, m)
}

// WithLock runs fn while holding key.
func (kl *KeyLock) WithLock(ctx context.Context, key string, fn func() error) error {
	if err := kl.Lock(ctx, key); err != nil {
		return err
	}
	defer kl.Unlock(key)
	return fn()
}

// IsLocked reports whether key is currently held.
// This is a point-in-time check and may change immediately after.
func (kl *KeyLock) IsLocked(key string) bool {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	m, ok := kl.locks[key]
	return ok && len(m.ch) == 1
}

// Len returns the number of keys currently held or awaited.
func (kl *KeyLock) Len() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.locks)
}
