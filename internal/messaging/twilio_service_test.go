package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/BTreeMap/LeadPipe/internal/twiliowhatsapp"
)

func TestTwilioService_ValidateAndCanonicalizeRecipient(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"+971501234567", "+971501234567", false},
		{"whatsapp:+971501234567", "+971501234567", false},
		{"+971 (50) 123-4567", "+971501234567", false},
		{"", "", true},
		{"abc", "", true},
		{"12345", "", true},
	}
	for _, tt := range tests {
		got, err := svc.ValidateAndCanonicalizeRecipient(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateAndCanonicalizeRecipient(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ValidateAndCanonicalizeRecipient(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTwilioService_SendMessage(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	svc := NewTwilioService(mock)
	ctx := context.Background()

	if err := svc.SendMessage(ctx, "whatsapp:+971501234567", "Hello"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	sent := mock.Sent()
	if len(sent) != 1 || sent[0].To != "+971501234567" || sent[0].Body != "Hello" {
		t.Errorf("unexpected sent messages %+v", sent)
	}

	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := svc.SendMessage(ctx, "+971501234567", "again"); !errors.Is(err, ErrServiceStopped) {
		t.Errorf("expected ErrServiceStopped, got %v", err)
	}
	if _, ok := <-svc.Responses(); ok {
		t.Error("expected responses channel closed")
	}
}
