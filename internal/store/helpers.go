package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// encodeData converts the answer map to the JSON text stored in conversation_data.
func encodeData(data map[string]string) (string, error) {
	if len(data) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to encode conversation_data: %w", err)
	}
	return string(b), nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanConversation reads current_state, conversation_data, message_count,
// retry_count and outcome, in that order.
func scanConversation(row rowScanner) (*models.Conversation, error) {
	var (
		conv    models.Conversation
		data    string
		outcome sql.NullString
	)
	if err := row.Scan(&conv.CurrentState, &data, &conv.MessageCount, &conv.RetryCount, &outcome); err != nil {
		return nil, err
	}
	conv.ConversationData = make(map[string]string)
	if data != "" {
		if err := json.Unmarshal([]byte(data), &conv.ConversationData); err != nil {
			return nil, fmt.Errorf("failed to decode conversation_data: %w", err)
		}
	}
	conv.Outcome = models.Outcome(outcome.String)
	return &conv, nil
}

// scanContact reads phone, full_name, status, product and last_contacted, in that order.
func scanContact(row rowScanner) (models.Contact, error) {
	var (
		c             models.Contact
		status        string
		lastContacted sql.NullTime
	)
	if err := row.Scan(&c.Phone, &c.FullName, &status, &c.Product, &lastContacted); err != nil {
		return c, err
	}
	c.Status = models.ContactStatus(status)
	if lastContacted.Valid {
		t := lastContacted.Time
		c.LastContacted = &t
	}
	return c, nil
}
