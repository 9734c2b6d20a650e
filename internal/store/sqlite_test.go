package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(WithSQLiteDSN(filepath.Join(t.TempDir(), "nested", "leadpipe.db")))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_ConversationRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t)

	got, err := s.LoadConversation(ctx, "20260314", "+971500000020")
	if err != nil || got != nil {
		t.Fatalf("expected (nil, nil) for missing record, got %+v, %v", got, err)
	}

	want := sampleConversation()
	if err := s.SaveConversation(ctx, "20260314", "+971500000020", want); err != nil {
		t.Fatalf("SaveConversation() error = %v", err)
	}
	got, err = s.LoadConversation(ctx, "20260314", "+971500000020")
	if err != nil {
		t.Fatalf("LoadConversation() error = %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	// Upsert replaces the record and preserves outcome.
	want.CurrentState = models.StateEnd
	want.Outcome = models.OutcomeDisqualified
	want.MessageCount = 5
	if err := s.SaveConversation(ctx, "20260314", "+971500000020", want); err != nil {
		t.Fatalf("SaveConversation() error = %v", err)
	}
	got, _ = s.LoadConversation(ctx, "20260314", "+971500000020")
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("upsert mismatch (-want +got):\n%s", diff)
	}

	if other, _ := s.LoadConversation(ctx, "20260315", "+971500000020"); other != nil {
		t.Error("expected units to be isolated")
	}

	if err := s.DeleteConversation(ctx, "20260314", "+971500000020"); err != nil {
		t.Fatalf("DeleteConversation() error = %v", err)
	}
	if got, _ := s.LoadConversation(ctx, "20260314", "+971500000020"); got != nil {
		t.Error("expected record deleted")
	}
}

func TestSQLiteStore_EmptyDataRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t)

	want := models.NewConversation()
	if err := s.SaveConversation(ctx, "u", "a", want); err != nil {
		t.Fatalf("SaveConversation() error = %v", err)
	}
	got, err := s.LoadConversation(ctx, "u", "a")
	if err != nil {
		t.Fatalf("LoadConversation() error = %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSQLiteStore_Contacts(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t)

	for _, c := range []models.Contact{
		{Phone: "+971500000031", FullName: "Aisha", Status: models.ContactStatusPending, Product: "mortgage"},
		{Phone: "+971500000032", FullName: "Omar", Status: models.ContactStatusPending},
		{Phone: "+971500000033", FullName: "Lina", Status: models.ContactStatusQualified},
	} {
		if err := s.UpsertContact(ctx, c); err != nil {
			t.Fatalf("UpsertContact(%s) error = %v", c.Phone, err)
		}
	}

	pending, err := s.PendingContacts(ctx, 0)
	if err != nil {
		t.Fatalf("PendingContacts() error = %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending contacts, got %d", len(pending))
	}
	limited, _ := s.PendingContacts(ctx, 1)
	if len(limited) != 1 {
		t.Errorf("expected limit 1 to return 1 contact, got %d", len(limited))
	}

	if err := s.UpdateContactStatus(ctx, "+971500000031", models.ContactStatusContacted); err != nil {
		t.Fatalf("UpdateContactStatus() error = %v", err)
	}
	c, err := s.GetContact(ctx, "+971500000031")
	if err != nil || c == nil {
		t.Fatalf("GetContact() = %+v, %v", c, err)
	}
	if c.Status != models.ContactStatusContacted || c.LastContacted == nil {
		t.Errorf("expected contacted with timestamp, got %+v", c)
	}
	if c.FullName != "Aisha" || c.Product != "mortgage" {
		t.Errorf("unexpected contact fields: %+v", c)
	}

	// Replied only applies to pending or contacted contacts.
	if err := s.MarkContactReplied(ctx, "+971500000031"); err != nil {
		t.Fatalf("MarkContactReplied() error = %v", err)
	}
	if err := s.MarkContactReplied(ctx, "+971500000033"); err != nil {
		t.Fatalf("MarkContactReplied() error = %v", err)
	}
	c, _ = s.GetContact(ctx, "+971500000031")
	if c.Status != models.ContactStatusReplied {
		t.Errorf("expected replied, got %s", c.Status)
	}
	c, _ = s.GetContact(ctx, "+971500000033")
	if c.Status != models.ContactStatusQualified {
		t.Errorf("expected qualified to be kept, got %s", c.Status)
	}

	if missing, err := s.GetContact(ctx, "+971500000099"); err != nil || missing != nil {
		t.Errorf("expected (nil, nil) for unknown contact, got %+v, %v", missing, err)
	}

	stats, err := s.ContactStats(ctx)
	if err != nil {
		t.Fatalf("ContactStats() error = %v", err)
	}
	want := models.ContactStats{Total: 3, Pending: 1, Replied: 1, Qualified: 1}
	if diff := cmp.Diff(want, stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestSQLiteStore_Dedup(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t)

	first, err := s.RecordInbound(ctx, "SM123", "+971500000040")
	if err != nil || !first {
		t.Fatalf("first RecordInbound() = %v, %v; want true, nil", first, err)
	}
	again, err := s.RecordInbound(ctx, "SM123", "+971500000040")
	if err != nil || again {
		t.Fatalf("duplicate RecordInbound() = %v, %v; want false, nil", again, err)
	}
	if err := s.MarkProcessed(ctx, "SM123"); err != nil {
		t.Errorf("MarkProcessed() error = %v", err)
	}
}

func TestMemoryDedup(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDedup(0)

	if ok, _ := d.RecordInbound(ctx, "m1", "a"); !ok {
		t.Fatal("expected first record to be new")
	}
	if ok, _ := d.RecordInbound(ctx, "m1", "a"); ok {
		t.Fatal("expected duplicate")
	}
}
