// Package outreach greets pending contacts from the ledger, pacing sends so the
// WhatsApp sender stays within provider rate limits.
package outreach

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/BTreeMap/LeadPipe/internal/contacts"
	"github.com/BTreeMap/LeadPipe/internal/flow"
	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/util"
)

// DefaultInterval is the pause between two outreach messages.
const DefaultInterval = 3 * time.Second

// OutboundOutreach is the outbound kind reported to the Observer.
const OutboundOutreach = "outreach"

// Starter greets a sender who has never been greeted; *dialogue.Engine implements it.
type Starter interface {
	Start(ctx context.Context, senderID, displayName string, deliver func(ctx context.Context, message string) error) (bool, error)
	Document() *flow.Document
}

// Sender delivers one message; messaging.Service implements it.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Observer receives one event per attempted send.
type Observer interface {
	ObserveOutbound(kind string, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveOutbound(string, error) {}

// Options controls one campaign run.
type Options struct {
	Limit    int           // maximum contacts to greet; 0 means all pending
	Interval time.Duration // minimum pause between sends
	DryRun   bool          // log greetings without sending or touching any state
}

// Report summarizes a campaign run.
type Report struct {
	ID       string    `json:"id"`
	Total    int       `json:"total"`
	Sent     int       `json:"sent"`
	Skipped  int       `json:"skipped"`
	Failed   int       `json:"failed"`
	Errors   []string  `json:"errors,omitempty"`
	DryRun   bool      `json:"dry_run"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
}

// SuccessRate is the share of contacts greeted, in percent.
func (r Report) SuccessRate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Sent) / float64(r.Total) * 100
}

// CampaignOption configures a Campaign.
type CampaignOption func(*Campaign)

// WithObserver reports each send to obs.
func WithObserver(obs Observer) CampaignOption {
	return func(c *Campaign) { c.observer = obs }
}

// Campaign sends the flow greeting to pending contacts.
type Campaign struct {
	engine   Starter
	contacts *contacts.Manager
	sender   Sender
	observer Observer
}

// NewCampaign creates a campaign that greets through engine and sender.
func NewCampaign(engine Starter, contacts *contacts.Manager, sender Sender, opts ...CampaignOption) *Campaign {
	c := &Campaign{
		engine:   engine,
		contacts: contacts,
		sender:   sender,
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run greets up to opts.Limit pending contacts. Each greeting moves the
// conversation past INITIAL and the contact to contacted, but only when the
// send succeeds. A cancelled ctx stops the run and returns the partial report.
func (c *Campaign) Run(ctx context.Context, opts Options) (Report, error) {
	report := Report{ID: uuid.NewString(), DryRun: opts.DryRun, Started: time.Now()}

	pending, err := c.contacts.Pending(ctx, opts.Limit)
	if err != nil {
		return report, fmt.Errorf("failed to load pending contacts: %w", err)
	}
	report.Total = len(pending)
	if len(pending) == 0 {
		slog.Info("Campaign.Run: no pending contacts", "campaign", report.ID)
		report.Finished = time.Now()
		return report, nil
	}
	slog.Info("Campaign.Run: starting", "campaign", report.ID, "contacts", len(pending), "interval", opts.Interval, "dry_run", opts.DryRun)

	var limiter *rate.Limiter
	if opts.Interval > 0 {
		limiter = rate.NewLimiter(rate.Every(opts.Interval), 1)
	}

	for i, contact := range pending {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return c.finish(report), fmt.Errorf("campaign interrupted after %d of %d contacts: %w", i, len(pending), err)
			}
		} else if err := ctx.Err(); err != nil {
			return c.finish(report), fmt.Errorf("campaign interrupted after %d of %d contacts: %w", i, len(pending), err)
		}

		slog.Debug("Campaign.Run: greeting contact", "campaign", report.ID, "n", i+1, "of", len(pending), "to", util.RedactPhone(contact.Phone))
		switch outcome, err := c.greet(ctx, contact, opts.DryRun); {
		case err != nil:
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", util.RedactPhone(contact.Phone), err))
		case outcome:
			report.Sent++
		default:
			report.Skipped++
		}
	}
	return c.finish(report), nil
}

// greet reports whether a greeting was sent; false with no error means the
// sender had already been greeted.
func (c *Campaign) greet(ctx context.Context, contact models.Contact, dryRun bool) (bool, error) {
	if dryRun {
		msg := c.engine.Document().RenderGreeting(contact.FullName)
		slog.Info("Campaign.Run: [dry-run] would send greeting", "to", util.RedactPhone(contact.Phone), "message", msg)
		return true, nil
	}

	sent, err := c.engine.Start(ctx, contact.Phone, contact.FullName, func(ctx context.Context, message string) error {
		err := c.sender.SendMessage(ctx, contact.Phone, message)
		c.observer.ObserveOutbound(OutboundOutreach, err)
		return err
	})
	if err != nil {
		slog.Warn("Campaign.Run: greeting failed", "to", util.RedactPhone(contact.Phone), "error", err)
		return false, err
	}
	if !sent {
		slog.Info("Campaign.Run: contact already in conversation, skipping", "to", util.RedactPhone(contact.Phone))
	}
	// A greeted contact leaves the pending queue either way.
	if err := c.contacts.UpdateStatus(ctx, contact.Phone, models.ContactStatusContacted); err != nil {
		slog.Error("Campaign.Run: failed to mark contact contacted", "to", util.RedactPhone(contact.Phone), "error", err)
	}
	return sent, nil
}

func (c *Campaign) finish(report Report) Report {
	report.Finished = time.Now()
	slog.Info("Campaign.Run: complete",
		"campaign", report.ID,
		"total", report.Total,
		"sent", report.Sent,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"success_rate", fmt.Sprintf("%.1f%%", report.SuccessRate()),
		"elapsed", report.Finished.Sub(report.Started))
	return report
}
