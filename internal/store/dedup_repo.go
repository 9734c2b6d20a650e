package store

import (
	"context"
	"sync"
	"time"
)

// DedupRepo records inbound message ids so webhook retries and transport
// redeliveries are processed once.
type DedupRepo interface {
	// RecordInbound inserts a new inbound message record. Returns false if the
	// message was already recorded (duplicate).
	RecordInbound(ctx context.Context, messageID, senderID string) (bool, error)

	// MarkProcessed sets the processed_at timestamp for a message.
	MarkProcessed(ctx context.Context, messageID string) error
}

// MemoryDedup is a process-local DedupRepo that forgets ids after a retention
// window. It is for tests and single-process embedders; the CLI uses the SQL
// store or RedisBackend.
type MemoryDedup struct {
	mu        sync.Mutex
	seen      map[string]time.Time
	retention time.Duration
	now       func() time.Time
}

var _ DedupRepo = (*MemoryDedup)(nil)

// NewMemoryDedup keeps ids for retention; zero means 24 hours.
func NewMemoryDedup(retention time.Duration) *MemoryDedup {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &MemoryDedup{seen: make(map[string]time.Time), retention: retention, now: time.Now}
}

func (d *MemoryDedup) RecordInbound(_ context.Context, messageID, _ string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for id, at := range d.seen {
		if now.Sub(at) > d.retention {
			delete(d.seen, id)
		}
	}
	if _, ok := d.seen[messageID]; ok {
		return false, nil
	}
	d.seen[messageID] = now
	return true, nil
}

func (d *MemoryDedup) MarkProcessed(context.Context, string) error {
	return nil
}
