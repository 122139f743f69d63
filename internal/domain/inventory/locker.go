package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ehr/medledger/internal/platform/apperror"
)

// KeyLocker serializes writers per inventory key within this process.
// Unrelated keys never contend. Entries are reference counted and dropped
// once nobody holds or waits for them.
type KeyLocker struct {
	timeout time.Duration

	mu    sync.Mutex
	locks map[Key]*keyLock
}

type keyLock struct {
	sem  *semaphore.Weighted
	refs int
}

func NewKeyLocker(timeout time.Duration) *KeyLocker {
	return &KeyLocker{timeout: timeout, locks: make(map[Key]*keyLock)}
}

// Lock acquires every distinct key in a fixed order, so two callers that
// share keys cannot deadlock. If the keys cannot all be acquired within the
// locker's timeout, nothing is held and the error wraps
// ErrConcurrentModification. The returned release func is idempotent.
func (l *KeyLocker) Lock(ctx context.Context, keys ...Key) (func(), error) {
	ordered := dedupe(keys)

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	held := make([]*keyLock, 0, len(ordered))
	for _, k := range ordered {
		kl := l.ref(k)
		if err := kl.sem.Acquire(ctx, 1); err != nil {
			l.unref(k, kl, false)
			l.releaseAll(ordered[:len(held)], held)
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("lock %s: timed out after %s: %w", k, l.timeout, apperror.ErrConcurrentModification)
			}
			return nil, fmt.Errorf("lock %s: %w", k, err)
		}
		held = append(held, kl)
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.releaseAll(ordered, held) })
	}, nil
}

func (l *KeyLocker) ref(k Key) *keyLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl, ok := l.locks[k]
	if !ok {
		kl = &keyLock{sem: semaphore.NewWeighted(1)}
		l.locks[k] = kl
	}
	kl.refs++
	return kl
}

func (l *KeyLocker) unref(k Key, kl *keyLock, acquired bool) {
	if acquired {
		kl.sem.Release(1)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, k)
	}
}

func (l *KeyLocker) releaseAll(keys []Key, held []*keyLock) {
	for i := len(held) - 1; i >= 0; i-- {
		l.unref(keys[i], held[i], true)
	}
}

// size reports how many keys are currently held or awaited.
func (l *KeyLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func dedupe(keys []Key) []Key {
	seen := make(map[Key]bool, len(keys))
	out := make([]Key, 0, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].less(out[j]) })
	return out
}
