package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

const contactColumns = `phone, full_name, status, product, last_contacted`

func (s *SQLiteStore) UpsertContact(ctx context.Context, c models.Contact) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contacts (phone, full_name, status, product, last_contacted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (phone) DO UPDATE SET
			full_name = excluded.full_name,
			status = excluded.status,
			product = excluded.product,
			updated_at = excluded.updated_at`,
		c.Phone, c.FullName, string(c.Status), c.Product, c.LastContacted, now, now)
	if err != nil {
		slog.Error("SQLiteStore UpsertContact failed", "error", err)
		return fmt.Errorf("failed to upsert contact: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetContact(ctx context.Context, phone string) (*models.Contact, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM contacts WHERE phone = ?`, phone)
	c, err := scanContact(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetContact failed", "error", err)
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}
	return &c, nil
}

func (s *SQLiteStore) PendingContacts(ctx context.Context, limit int) ([]models.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE status = ? ORDER BY created_at, phone`
	args := []interface{}{string(models.ContactStatusPending)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Error("SQLiteStore PendingContacts query failed", "error", err)
		return nil, fmt.Errorf("failed to query pending contacts: %w", err)
	}
	defer rows.Close()

	var out []models.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contact row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contact rows: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) UpdateContactStatus(ctx context.Context, phone string, status models.ContactStatus) error {
	now := time.Now()
	var err error
	if status == models.ContactStatusContacted {
		_, err = s.db.ExecContext(ctx,
			`UPDATE contacts SET status = ?, last_contacted = ?, updated_at = ? WHERE phone = ?`,
			string(status), now, now, phone)
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE contacts SET status = ?, updated_at = ? WHERE phone = ?`,
			string(status), now, phone)
	}
	if err != nil {
		slog.Error("SQLiteStore UpdateContactStatus failed", "error", err, "status", status)
		return fmt.Errorf("failed to update contact status: %w", err)
	}
	return nil
}

func (s *SQLiteStore) MarkContactReplied(ctx context.Context, phone string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE contacts SET status = ?, updated_at = ? WHERE phone = ? AND status IN (?, ?)`,
		string(models.ContactStatusReplied), time.Now(), phone,
		string(models.ContactStatusPending), string(models.ContactStatusContacted))
	if err != nil {
		slog.Error("SQLiteStore MarkContactReplied failed", "error", err)
		return fmt.Errorf("failed to mark contact replied: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ContactStats(ctx context.Context) (models.ContactStats, error) {
	return contactStats(ctx, s.db)
}

// contactStats aggregates contacts per status; the query is portable across drivers.
func contactStats(ctx context.Context, db *sql.DB) (models.ContactStats, error) {
	var stats models.ContactStats
	rows, err := db.QueryContext(ctx, `SELECT status, COUNT(*) FROM contacts GROUP BY status`)
	if err != nil {
		return stats, fmt.Errorf("failed to query contact stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return stats, fmt.Errorf("failed to scan contact stats: %w", err)
		}
		stats.Add(models.ContactStatus(status), n)
	}
	return stats, rows.Err()
}
