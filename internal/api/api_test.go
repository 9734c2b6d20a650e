package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/LeadPipe/internal/contacts"
	"github.com/BTreeMap/LeadPipe/internal/dialogue"
	"github.com/BTreeMap/LeadPipe/internal/flow"
	"github.com/BTreeMap/LeadPipe/internal/messaging"
	"github.com/BTreeMap/LeadPipe/internal/metrics"
	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/store"
)

const lead = "+971501234567"

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type testServer struct {
	server  *Server
	engine  *dialogue.Engine
	ledger  *contacts.MemoryLedger
	metrics *metrics.Metrics
}

func newTestServer(t *testing.T, opts ...Option) *testServer {
	t.Helper()
	doc, err := flow.Load(filepath.Join("..", "..", "dialogue", "mortgage.flow.json"))
	require.NoError(t, err)

	m := metrics.New()
	engine := dialogue.New(doc, store.NewConversationStore(nil), dialogue.WithRecorder(m))
	ledger := contacts.NewMemoryLedger()
	manager := contacts.NewManager(ledger)
	handler := messaging.NewResponseHandler(engine,
		messaging.WithContacts(manager),
		messaging.WithDedup(store.NewMemoryDedup(time.Hour)),
		messaging.WithObserver(m),
	)

	opts = append([]Option{WithContacts(manager), WithMetricsHandler(m.Handler())}, opts...)
	return &testServer{
		server:  NewServer(engine, handler, opts...),
		engine:  engine,
		ledger:  ledger,
		metrics: m,
	}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	return rec
}

func webhookRequest(form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func inboundForm(sid, body string) url.Values {
	return url.Values{
		"From":        {"whatsapp:" + lead},
		"To":          {"whatsapp:+14155238886"},
		"Body":        {body},
		"MessageSid":  {sid},
		"ProfileName": {"Aisha"},
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestWebhook_QualifiedConversation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(webhookRequest(inboundForm("SM1", "hello")))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<Response>")
	assert.Contains(t, rec.Body.String(), "Hi Aisha!")

	var last string
	for i, body := range []string{"yes", "salaried", "12000", "expat"} {
		rec = ts.do(webhookRequest(inboundForm("SM"+string(rune('2'+i)), body)))
		require.Equal(t, http.StatusOK, rec.Code)
		last = rec.Body.String()
	}
	assert.Contains(t, last, "https://calendly.com/leadpipe/mortgage-consultation")

	summary, err := ts.engine.Summary(context.Background(), lead)
	require.NoError(t, err)
	assert.Equal(t, models.StateEnd, summary.CurrentState)
	assert.Equal(t, models.OutcomeQualified, summary.Outcome)
	assert.Equal(t, "12000", summary.Data["income"])
}

func TestWebhook_DuplicateDeliveryGetsEmptyResponse(t *testing.T) {
	ts := newTestServer(t)

	first := ts.do(webhookRequest(inboundForm("SMdup", "hello")))
	require.Equal(t, http.StatusOK, first.Code)

	second := ts.do(webhookRequest(inboundForm("SMdup", "hello")))
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, emptyTwiML, second.Body.String())

	summary, err := ts.engine.Summary(context.Background(), lead)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.MessageCount)
}

func TestWebhook_ErrorStillAnswers200(t *testing.T) {
	ts := newTestServer(t)

	form := inboundForm("SMbad", "hello")
	form.Set("From", "whatsapp:")
	rec := ts.do(webhookRequest(form))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Sorry, I encountered an error. Please try again later.")
}

type failingInbound struct{}

func (failingInbound) Handle(context.Context, models.InboundMessage) (messaging.Reply, error) {
	return messaging.Reply{}, errors.New("boom")
}

func TestWebhook_HandlerFailure(t *testing.T) {
	ts := newTestServer(t)
	srv := NewServer(ts.engine, failingInbound{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, webhookRequest(inboundForm("SM1", "hi")))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Sorry, I encountered an error")
}

// twilioSignature signs the request the way Twilio does: URL followed by the
// sorted form keys and values, HMAC-SHA1 with the auth token.
func twilioSignature(token, rawURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(rawURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(form.Get(k))
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestWebhook_SignatureValidation(t *testing.T) {
	const (
		token     = "test-auth-token"
		publicURL = "https://leads.example.com/webhook"
	)
	ts := newTestServer(t, WithSignatureValidation(token, publicURL))
	form := inboundForm("SMsig", "hello")

	missing := ts.do(webhookRequest(form))
	assert.Equal(t, http.StatusForbidden, missing.Code)

	forged := webhookRequest(form)
	forged.Header.Set("X-Twilio-Signature", twilioSignature("wrong-token", publicURL, form))
	assert.Equal(t, http.StatusForbidden, ts.do(forged).Code)

	signed := webhookRequest(form)
	signed.Header.Set("X-Twilio-Signature", twilioSignature(token, publicURL, form))
	rec := ts.do(signed)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Hi Aisha!")
}

func TestWebhookStatus(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/webhook", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got webhookStatus
	decode(t, rec, &got)
	assert.Equal(t, "Webhook is active", got.Status)
	assert.False(t, got.Timestamp.IsZero())
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	ts.do(webhookRequest(inboundForm("SM1", "hello")))

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got healthStatus
	decode(t, rec, &got)
	assert.Equal(t, "healthy", got.Status)
	assert.Equal(t, ServiceName, got.Service)
	assert.Equal(t, 1, got.ActiveConversations)
}

func TestStats(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, ts.ledger.UpsertContact(ctx, models.Contact{Phone: lead, FullName: "Aisha", Status: models.ContactStatusContacted}))
	require.NoError(t, ts.ledger.UpsertContact(ctx, models.Contact{Phone: "+971509999999", FullName: "Omar", Status: models.ContactStatusPending}))

	for i, body := range []string{"hello", "no"} {
		ts.do(webhookRequest(inboundForm("SM"+string(rune('1'+i)), body)))
	}

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var env envelope
	decode(t, rec, &env)
	require.Equal(t, "ok", env.Status)

	var got struct {
		Total    int                 `json:"total_conversations"`
		Active   int                 `json:"active_conversations"`
		Contacts models.ContactStats `json:"contacts"`
	}
	require.NoError(t, json.Unmarshal(env.Result, &got))
	assert.Equal(t, 1, got.Total)
	assert.Equal(t, 0, got.Active)
	assert.Equal(t, 2, got.Contacts.Total)
	assert.Equal(t, 1, got.Contacts.Replied)
	assert.Equal(t, 1, got.Contacts.Pending)
}

func TestConversationAdmin(t *testing.T) {
	ts := newTestServer(t)
	ts.do(webhookRequest(inboundForm("SM1", "hello")))

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/conversations/%2B971501234567", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var env envelope
	decode(t, rec, &env)
	var summary models.ConversationSummary
	require.NoError(t, json.Unmarshal(env.Result, &summary))
	assert.Equal(t, lead, summary.PhoneNumber)
	assert.Equal(t, 1, summary.MessageCount)
	assert.NotEqual(t, models.StateInitial, summary.CurrentState)

	rec = ts.do(httptest.NewRequest(http.MethodDelete, "/conversations/0501234567", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	summary, err := ts.engine.Summary(context.Background(), lead)
	require.NoError(t, err)
	assert.Equal(t, models.StateInitial, summary.CurrentState)
	assert.Equal(t, 0, summary.MessageCount)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/conversations/not-a-phone", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIndexAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var idx serviceIndex
	decode(t, rec, &idx)
	assert.Equal(t, "running", idx.Status)
	assert.Equal(t, "/metrics", idx.Endpoints["metrics"])

	ts.do(webhookRequest(inboundForm("SM1", "hello")))
	rec = ts.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "leadpipe_inbound_messages_total")
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(httptest.NewRequest(http.MethodPut, "/webhook", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRunShutsDownOnCancel(t *testing.T) {
	ts := newTestServer(t)
	srv := NewServer(ts.engine, failingInbound{}, WithAddr("127.0.0.1:0"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
