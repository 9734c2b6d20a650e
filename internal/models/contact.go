package models

import "time"

// ContactStatus tracks a lead through the outreach lifecycle.
type ContactStatus string

const (
	ContactStatusPending      ContactStatus = "pending"
	ContactStatusContacted    ContactStatus = "contacted"
	ContactStatusReplied      ContactStatus = "replied"
	ContactStatusQualified    ContactStatus = "qualified"
	ContactStatusDisqualified ContactStatus = "disqualified"
)

// IsValid reports whether s is a known contact status.
func (s ContactStatus) IsValid() bool {
	switch s {
	case ContactStatusPending, ContactStatusContacted, ContactStatusReplied,
		ContactStatusQualified, ContactStatusDisqualified:
		return true
	default:
		return false
	}
}

// Contact is a lead in the contact ledger, keyed by its normalized phone number.
type Contact struct {
	Phone         string        `json:"phone"`
	FullName      string        `json:"full_name"`
	Status        ContactStatus `json:"status"`
	Product       string        `json:"product,omitempty"`
	LastContacted *time.Time    `json:"last_contacted,omitempty"`
}

// ContactStats counts contacts per status.
type ContactStats struct {
	Total        int `json:"total"`
	Pending      int `json:"pending"`
	Contacted    int `json:"contacted"`
	Replied      int `json:"replied"`
	Qualified    int `json:"qualified"`
	Disqualified int `json:"disqualified"`
}

// Add increments the counter for status.
func (s *ContactStats) Add(status ContactStatus, n int) {
	s.Total += n
	switch status {
	case ContactStatusPending:
		s.Pending += n
	case ContactStatusContacted:
		s.Contacted += n
	case ContactStatusReplied:
		s.Replied += n
	case ContactStatusQualified:
		s.Qualified += n
	case ContactStatusDisqualified:
		s.Disqualified += n
	}
}
