package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flowdesk/flowdesk/internal/models"
)

// DefaultLockTimeout bounds how long an inbound message waits for its
// conversation's turn before the caller sends a busy reply.
const DefaultLockTimeout = 10 * time.Second

// KeyedLock serializes work per conversation key. Each key owns a
// one-slot channel acting as a mutex; waiters queue on the channel in
// arrival order, so two rapid messages from the same user are processed
// FIFO while different conversations proceed fully in parallel.
type KeyedLock struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	ch   chan struct{}
	refs int
}

// NewKeyedLock creates an empty keyed lock.
func NewKeyedLock() *KeyedLock {
	return &KeyedLock{locks: make(map[string]*lockEntry)}
}

// Acquire takes the lock for the given key, waiting at most timeout.
// Failure to acquire returns models.ErrConversationLockTimeout; the
// caller must surface a user-visible reply, never drop silently.
func (kl *KeyedLock) Acquire(ctx context.Context, key string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}

	kl.mu.Lock()
	entry, ok := kl.locks[key]
	if !ok {
		entry = &lockEntry{ch: make(chan struct{}, 1)}
		kl.locks[key] = entry
	}
	entry.refs++
	kl.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case entry.ch <- struct{}{}:
		return nil
	case <-timer.C:
		kl.release(key, entry)
		slog.Warn("KeyedLock acquire timed out", "key", key, "timeout", timeout)
		return fmt.Errorf("%w: key %s", models.ErrConversationLockTimeout, key)
	case <-ctx.Done():
		kl.release(key, entry)
		return fmt.Errorf("%w: %v", models.ErrConversationLockTimeout, ctx.Err())
	}
}

// Release returns the lock for the given key.
func (kl *KeyedLock) Release(key string) {
	kl.mu.Lock()
	entry, ok := kl.locks[key]
	kl.mu.Unlock()
	if !ok {
		return
	}
	select {
	case <-entry.ch:
	default:
		// Releasing an unheld lock is a programming error; keep going.
		slog.Error("KeyedLock release without matching acquire", "key", key)
	}
	kl.release(key, entry)
}

// release drops one reference and garbage-collects idle entries.
func (kl *KeyedLock) release(key string, entry *lockEntry) {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	entry.refs--
	if entry.refs <= 0 && len(entry.ch) == 0 {
		delete(kl.locks, key)
	}
}
