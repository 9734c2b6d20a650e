package whatsapp

import (
	"context"
	"testing"
)

func TestOptions(t *testing.T) {
	opts := &Opts{}
	WithDBDSN("/var/lib/leadpipe/test.db")(opts)
	WithQRCodeOutput("/tmp/qr.txt")(opts)
	WithNumericCode()(opts)

	if opts.DBDSN != "/var/lib/leadpipe/test.db" {
		t.Errorf("Expected DBDSN to be set, got %q", opts.DBDSN)
	}
	if opts.QRPath != "/tmp/qr.txt" {
		t.Errorf("Expected QRPath to be set, got %q", opts.QRPath)
	}
	if !opts.NumericCode {
		t.Errorf("Expected NumericCode to be true, got false")
	}
}

func TestForeignKeyDetection(t *testing.T) {
	tests := []struct {
		dsn  string
		want bool
	}{
		{"/tmp/test.db", false},
		{"file:/tmp/test.db?_foreign_keys=on", true},
		{"/tmp/test.db?foreign_keys=on", true},
	}
	for _, tt := range tests {
		if got := hasForeignKeys(tt.dsn); got != tt.want {
			t.Errorf("hasForeignKeys(%q) = %v, want %v", tt.dsn, got, tt.want)
		}
	}
}

func TestJID(t *testing.T) {
	for _, in := range []string{"+971501234567", "971501234567", "whatsapp:+971501234567"} {
		jid, err := JID(in)
		if err != nil {
			t.Fatalf("JID(%q) error = %v", in, err)
		}
		if jid.User != "971501234567" || jid.Server != JIDSuffix {
			t.Errorf("JID(%q) = %s", in, jid)
		}
		if Phone(jid) != "+971501234567" {
			t.Errorf("Phone(%s) = %q", jid, Phone(jid))
		}
	}

	for _, in := range []string{"", "+", "+97150abc"} {
		if _, err := JID(in); err == nil {
			t.Errorf("JID(%q) expected error", in)
		}
	}
}

func TestMockClient(t *testing.T) {
	m := NewMockClient()
	if err := m.SendMessage(context.Background(), "+971501234567", "hi"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if err := m.SendMessage(context.Background(), "", "hi"); err == nil {
		t.Error("expected error for empty recipient")
	}
	if len(m.Sent) != 1 {
		t.Errorf("expected 1 sent message, got %d", len(m.Sent))
	}
}
