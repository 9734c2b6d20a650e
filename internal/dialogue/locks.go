package dialogue

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Locker is a distributed lock used when several instances share a store.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// senderLocks serializes work per sender. Entries are reference counted and
// removed once no caller holds or waits on them.
type senderLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
	locker  Locker
	ttl     time.Duration
}

func newSenderLocks(locker Locker, ttl time.Duration) *senderLocks {
	return &senderLocks{entries: make(map[string]*lockEntry), locker: locker, ttl: ttl}
}

func (l *senderLocks) acquire(key string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &lockEntry{}
		l.entries[key] = entry
	}
	entry.refs++
	return entry
}

func (l *senderLocks) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[key]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(l.entries, key)
	}
}

// size returns the number of live entries.
func (l *senderLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// with runs fn while holding the sender's lock. If the distributed lock cannot
// be taken the call proceeds under the local lock only.
func (l *senderLocks) with(ctx context.Context, key string, fn func(ctx context.Context)) {
	entry := l.acquire(key)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		l.release(key)
	}()

	if l.locker != nil {
		unlock, err := l.locker.Lock(ctx, "sender:"+key, l.ttl)
		if err != nil {
			slog.Warn("senderLocks.with: distributed lock unavailable, continuing with local lock", "error", err)
		} else {
			defer func() {
				if err := unlock(context.WithoutCancel(ctx)); err != nil {
					slog.Warn("senderLocks.with: distributed unlock failed", "error", err)
				}
			}()
		}
	}
	fn(ctx)
}
