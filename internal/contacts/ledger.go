package contacts

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// Ledger persists contacts keyed by normalized phone number. The SQLite and
// Postgres stores implement it.
type Ledger interface {
	UpsertContact(ctx context.Context, c models.Contact) error
	// GetContact returns nil, nil when the phone is unknown.
	GetContact(ctx context.Context, phone string) (*models.Contact, error)
	// PendingContacts returns up to limit pending contacts in import order; limit <= 0 means all.
	PendingContacts(ctx context.Context, limit int) ([]models.Contact, error)
	UpdateContactStatus(ctx context.Context, phone string, status models.ContactStatus) error
	// MarkContactReplied moves a pending or contacted contact to replied.
	MarkContactReplied(ctx context.Context, phone string) error
	ContactStats(ctx context.Context) (models.ContactStats, error)
}

// MemoryLedger is an in-process Ledger for tests and embedders. The CLI always
// keeps contacts in SQLite or PostgreSQL, whatever the conversation backend.
type MemoryLedger struct {
	mu       sync.RWMutex
	contacts map[string]*memoryContact
	seq      int
	now      func() time.Time
}

type memoryContact struct {
	contact models.Contact
	order   int
}

var _ Ledger = (*MemoryLedger)(nil)

// NewMemoryLedger returns an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{contacts: make(map[string]*memoryContact), now: time.Now}
}

func (l *MemoryLedger) UpsertContact(_ context.Context, c models.Contact) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.contacts[c.Phone]; ok {
		c.LastContacted = existing.contact.LastContacted
		existing.contact = c
		return nil
	}
	l.seq++
	l.contacts[c.Phone] = &memoryContact{contact: c, order: l.seq}
	return nil
}

func (l *MemoryLedger) GetContact(_ context.Context, phone string) (*models.Contact, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	mc, ok := l.contacts[phone]
	if !ok {
		return nil, nil
	}
	c := mc.contact
	return &c, nil
}

func (l *MemoryLedger) PendingContacts(_ context.Context, limit int) ([]models.Contact, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	pending := make([]*memoryContact, 0, len(l.contacts))
	for _, mc := range l.contacts {
		if mc.contact.Status == models.ContactStatusPending {
			pending = append(pending, mc)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].order < pending[j].order })
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}

	out := make([]models.Contact, len(pending))
	for i, mc := range pending {
		out[i] = mc.contact
	}
	return out, nil
}

func (l *MemoryLedger) UpdateContactStatus(_ context.Context, phone string, status models.ContactStatus) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	mc, ok := l.contacts[phone]
	if !ok {
		return nil
	}
	mc.contact.Status = status
	if status == models.ContactStatusContacted {
		t := l.now()
		mc.contact.LastContacted = &t
	}
	return nil
}

func (l *MemoryLedger) MarkContactReplied(_ context.Context, phone string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	mc, ok := l.contacts[phone]
	if !ok {
		return nil
	}
	switch mc.contact.Status {
	case models.ContactStatusPending, models.ContactStatusContacted:
		mc.contact.Status = models.ContactStatusReplied
	}
	return nil
}

func (l *MemoryLedger) ContactStats(context.Context) (models.ContactStats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var stats models.ContactStats
	for _, mc := range l.contacts {
		stats.Add(mc.contact.Status, 1)
	}
	return stats, nil
}
