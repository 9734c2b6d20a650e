package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

func (s *PostgresStore) UpsertContact(ctx context.Context, c models.Contact) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contacts (phone, full_name, status, product, last_contacted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (phone) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			status = EXCLUDED.status,
			product = EXCLUDED.product,
			updated_at = EXCLUDED.updated_at`,
		c.Phone, c.FullName, string(c.Status), c.Product, c.LastContacted, now)
	if err != nil {
		slog.Error("PostgresStore UpsertContact failed", "error", err)
		return fmt.Errorf("failed to upsert contact: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetContact(ctx context.Context, phone string) (*models.Contact, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM contacts WHERE phone = $1`, phone)
	c, err := scanContact(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetContact failed", "error", err)
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) PendingContacts(ctx context.Context, limit int) ([]models.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE status = $1 ORDER BY created_at, phone`
	args := []interface{}{string(models.ContactStatusPending)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Error("PostgresStore PendingContacts query failed", "error", err)
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

func (s *PostgresStore) UpdateContactStatus(ctx context.Context, phone string, status models.ContactStatus) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE contacts SET
			status = $1,
			last_contacted = CASE WHEN $1 = 'contacted' THEN $2 ELSE last_contacted END,
			updated_at = $2
		WHERE phone = $3`,
		string(status), time.Now(), phone)
	if err != nil {
		slog.Error("PostgresStore UpdateContactStatus failed", "error", err, "status", status)
		return fmt.Errorf("failed to update contact status: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkContactReplied(ctx context.Context, phone string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE contacts SET status = 'replied', updated_at = $1 WHERE phone = $2 AND status IN ('pending', 'contacted')`,
		time.Now(), phone)
	if err != nil {
		slog.Error("PostgresStore MarkContactReplied failed", "error", err)
		return fmt.Errorf("failed to mark contact replied: %w", err)
	}
	return nil
}

func (s *PostgresStore) ContactStats(ctx context.Context) (models.ContactStats, error) {
	return contactStats(ctx, s.db)
}
