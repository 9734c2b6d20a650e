package contacts

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/util"
)

// CSV column names accepted by Import. FullName and PhoneNumber are required.
const (
	ColumnFullName    = "FullName"
	ColumnPhoneNumber = "PhoneNumber"
	ColumnStatus      = "Status"
	ColumnProduct     = "Product"
)

// Opts configures a Manager.
type Opts struct {
	CountryCode string
	Product     string
}

// Option sets a Manager option.
type Option func(*Opts)

// WithCountryCode sets the country code assumed for local numbers.
func WithCountryCode(cc string) Option {
	return func(o *Opts) { o.CountryCode = cc }
}

// WithProduct sets the product tag for imported rows that carry none.
func WithProduct(product string) Option {
	return func(o *Opts) { o.Product = product }
}

// Manager normalizes phone numbers on every ledger access.
type Manager struct {
	ledger      Ledger
	countryCode string
	product     string
}

// NewManager wraps ledger.
func NewManager(ledger Ledger, opts ...Option) *Manager {
	cfg := Opts{CountryCode: DefaultCountryCode}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Manager{ledger: ledger, countryCode: cfg.CountryCode, product: cfg.Product}
}

// Normalize applies the manager's country code to raw.
func (m *Manager) Normalize(raw string) (string, error) {
	return NormalizePhone(raw, m.countryCode)
}

// Get looks up a contact by any accepted phone format.
func (m *Manager) Get(ctx context.Context, raw string) (*models.Contact, error) {
	phone, err := m.Normalize(raw)
	if err != nil {
		return nil, err
	}
	return m.ledger.GetContact(ctx, phone)
}

// DisplayName returns the contact's full name, or "" if unknown.
func (m *Manager) DisplayName(ctx context.Context, raw string) string {
	c, err := m.Get(ctx, raw)
	if err != nil || c == nil {
		return ""
	}
	return c.FullName
}

// Pending returns contacts awaiting outreach.
func (m *Manager) Pending(ctx context.Context, limit int) ([]models.Contact, error) {
	return m.ledger.PendingContacts(ctx, limit)
}

// UpdateStatus sets the status of a known contact.
func (m *Manager) UpdateStatus(ctx context.Context, raw string, status models.ContactStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("unknown contact status %q", status)
	}
	phone, err := m.Normalize(raw)
	if err != nil {
		return err
	}
	if err := m.ledger.UpdateContactStatus(ctx, phone, status); err != nil {
		return err
	}
	slog.Info("Manager.UpdateStatus: contact status updated", "phone", util.RedactPhone(phone), "status", status)
	return nil
}

// MarkReplied records an inbound reply unless the contact already has a final status.
func (m *Manager) MarkReplied(ctx context.Context, raw string) error {
	phone, err := m.Normalize(raw)
	if err != nil {
		return err
	}
	return m.ledger.MarkContactReplied(ctx, phone)
}

// RecordOutcome moves the contact to the status matching a conversation result.
func (m *Manager) RecordOutcome(ctx context.Context, raw string, ended bool, outcome models.Outcome) error {
	if ended {
		switch outcome {
		case models.OutcomeQualified:
			return m.UpdateStatus(ctx, raw, models.ContactStatusQualified)
		case models.OutcomeDisqualified:
			return m.UpdateStatus(ctx, raw, models.ContactStatusDisqualified)
		}
	}
	return m.MarkReplied(ctx, raw)
}

// Stats counts contacts per status.
func (m *Manager) Stats(ctx context.Context) (models.ContactStats, error) {
	return m.ledger.ContactStats(ctx)
}

// ImportReport summarizes a CSV import.
type ImportReport struct {
	Imported int
	Skipped  int
	Errors   []string
}

// Import reads contacts from CSV with a header row. Rows with an invalid phone
// or status are skipped and reported. An empty Status keeps the stored status
// of an existing contact and defaults to pending for new ones.
func (m *Manager) Import(ctx context.Context, r io.Reader) (ImportReport, error) {
	var report ImportReport

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return report, fmt.Errorf("contacts file is empty")
		}
		return report, fmt.Errorf("failed to read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, required := range []string{ColumnFullName, ColumnPhoneNumber} {
		if _, ok := cols[required]; !ok {
			return report, fmt.Errorf("contacts file must contain columns %s and %s", ColumnFullName, ColumnPhoneNumber)
		}
	}
	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return report, fmt.Errorf("failed to read line %d: %w", line, err)
		}

		phone, err := m.Normalize(field(rec, ColumnPhoneNumber))
		if err != nil {
			report.Skipped++
			report.Errors = append(report.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		c := models.Contact{
			Phone:    phone,
			FullName: field(rec, ColumnFullName),
			Status:   models.ContactStatus(strings.ToLower(field(rec, ColumnStatus))),
			Product:  field(rec, ColumnProduct),
		}
		if c.Product == "" {
			c.Product = m.product
		}
		if c.Status == "" {
			existing, err := m.ledger.GetContact(ctx, phone)
			if err != nil {
				return report, err
			}
			c.Status = models.ContactStatusPending
			if existing != nil {
				c.Status = existing.Status
			}
		}
		if !c.Status.IsValid() {
			report.Skipped++
			report.Errors = append(report.Errors, fmt.Sprintf("line %d: unknown status %q", line, c.Status))
			continue
		}
		if err := m.ledger.UpsertContact(ctx, c); err != nil {
			return report, err
		}
		report.Imported++
	}

	slog.Info("Manager.Import: contacts imported", "imported", report.Imported, "skipped", report.Skipped)
	return report, nil
}
