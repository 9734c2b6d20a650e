package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/BTreeMap/LeadPipe/internal/whatsapp"
)

// fakeEventClient is a send-capable client that also exposes an event source.
type fakeEventClient struct {
	*whatsapp.MockClient
	handler func(evt interface{})
	removed bool
}

func (f *fakeEventClient) AddEventHandler(fn func(evt interface{})) uint32 {
	f.handler = fn
	return 7
}

func (f *fakeEventClient) RemoveEventHandler(id uint32) {
	if id == 7 {
		f.removed = true
	}
}

func textMessage(sender, id, text string, fromMe, group bool) *events.Message {
	return &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Sender:   types.NewJID(sender, whatsapp.JIDSuffix),
				IsFromMe: fromMe,
				IsGroup:  group,
			},
			ID:        types.MessageID(id),
			PushName:  "Aisha",
			Timestamp: time.Unix(1700000000, 0),
		},
		Message: &waE2E.Message{Conversation: &text},
	}
}

func TestWhatsAppService_ImplementsService(t *testing.T) {
	var _ Service = (*WhatsAppService)(nil)
	var _ Service = (*TwilioService)(nil)
}

func TestWhatsAppService_SendMessage(t *testing.T) {
	mockClient := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mockClient)
	ctx := context.Background()

	if err := svc.SendMessage(ctx, "whatsapp:+971 50 123 4567", "hello"); err != nil {
		t.Fatalf("SendMessage returned error: %v", err)
	}
	if sent := mockClient.Messages(); len(sent) != 1 || sent[0].To != "+971501234567" {
		t.Errorf("unexpected sent messages %+v", sent)
	}
	if err := svc.SendMessage(ctx, "123", "hello"); err == nil {
		t.Error("expected validation error for short number")
	}
}

func TestWhatsAppService_ForwardsInboundText(t *testing.T) {
	client := &fakeEventClient{MockClient: whatsapp.NewMockClient()}
	svc := NewWhatsAppService(client)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if client.handler == nil {
		t.Fatal("expected event handler to be registered")
	}

	client.handler(textMessage("971501234567", "ABC", "from me", true, false))
	client.handler(textMessage("971501234567", "DEF", "group chatter", false, true))
	client.handler(&events.Message{Info: types.MessageInfo{ID: "IMG"}, Message: &waE2E.Message{}})
	client.handler(textMessage("971501234567", "XYZ", "Yes please", false, false))

	select {
	case msg := <-svc.Responses():
		if msg.ID != "XYZ" || msg.From != "+971501234567" || msg.Body != "Yes please" || msg.ProfileName != "Aisha" {
			t.Errorf("unexpected inbound message %+v", msg)
		}
		if msg.Time != 1700000000 {
			t.Errorf("expected timestamp to be kept, got %d", msg.Time)
		}
	default:
		t.Fatal("expected an inbound message")
	}
	select {
	case msg := <-svc.Responses():
		t.Errorf("expected filtered events to be dropped, got %+v", msg)
	default:
	}

	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if !client.removed {
		t.Error("expected handler to be removed on Stop")
	}
}

func TestWhatsAppService_StartStop(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("second Stop returned error: %v", err)
	}
	if msg, ok := <-svc.Responses(); ok {
		t.Errorf("expected responses channel closed, got value %v", msg)
	}
	if err := svc.SendMessage(context.Background(), "+971501234567", "hi"); !errors.Is(err, ErrServiceStopped) {
		t.Errorf("expected ErrServiceStopped, got %v", err)
	}
}
