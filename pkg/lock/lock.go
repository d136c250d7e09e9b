// Package lock provides a run-level mutual exclusion for periodic jobs.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Lease is a held lock. Release is safe to call more than once.
type Lease interface {
	Release(ctx context.Context) error
}

type Locker interface {
	// TryLock returns (nil, false, nil) when someone else holds key.
	TryLock(ctx context.Context, key string, ttl time.Duration) (Lease, bool, error)
}

// LocalLocker is an in-process Locker for single-instance deployments and tests.
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]localEntry
	nowFn func() time.Time
}

type localEntry struct {
	owner     string
	expiresAt time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]localEntry), nowFn: time.Now}
}

func (l *LocalLocker) TryLock(_ context.Context, key string, ttl time.Duration) (Lease, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFn()
	if e, ok := l.held[key]; ok && now.Before(e.expiresAt) {
		return nil, false, nil
	}
	owner := uuid.NewString()
	l.held[key] = localEntry{owner: owner, expiresAt: now.Add(ttl)}
	return &localLease{l: l, key: key, owner: owner}, true, nil
}

type localLease struct {
	l     *LocalLocker
	key   string
	owner string
}

func (ll *localLease) Release(context.Context) error {
	ll.l.mu.Lock()
	defer ll.l.mu.Unlock()
	if e, ok := ll.l.held[ll.key]; ok && e.owner == ll.owner {
		delete(ll.l.held, ll.key)
	}
	return nil
}
