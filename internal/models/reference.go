package models

import "time"

// ReferenceStatus captures outreach progress for a nominated reference.
type ReferenceStatus string

const (
	ReferenceStatusPending   ReferenceStatus = "PENDING"
	ReferenceStatusContacted ReferenceStatus = "CONTACTED"
	ReferenceStatusApplied   ReferenceStatus = "APPLIED"
)

// Valid reports whether the status is one of the known values.
func (s ReferenceStatus) Valid() bool {
	switch s {
	case ReferenceStatusPending, ReferenceStatusContacted, ReferenceStatusApplied:
		return true
	}
	return false
}

// Rank orders statuses along the outreach lifecycle.
func (s ReferenceStatus) Rank() int {
	switch s {
	case ReferenceStatusPending:
		return 0
	case ReferenceStatusContacted:
		return 1
	case ReferenceStatusApplied:
		return 2
	}
	return -1
}

// Reference is a third-party contact nominated by a voter.
// ReferenceContact is always the canonical 10-digit national number.
type Reference struct {
	ID               string          `db:"id" json:"id"`
	UserID           string          `db:"user_id" json:"userId"`
	ReferenceName    string          `db:"reference_name" json:"referenceName"`
	ReferenceContact string          `db:"reference_contact" json:"referenceContact"`
	Status           ReferenceStatus `db:"status" json:"status"`
	WhatsappSent     bool            `db:"whatsapp_sent" json:"whatsappSent"`
	WhatsappSentAt   *time.Time      `db:"whatsapp_sent_at" json:"whatsappSentAt,omitempty"`
	StatusUpdatedAt  *time.Time      `db:"status_updated_at" json:"statusUpdatedAt,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updatedAt"`
}

// NewReference is a validated, normalised candidate ready for persistence.
type NewReference struct {
	Name    string
	Contact string
}

// ReferenceFilter constrains admin listings.
type ReferenceFilter struct {
	UserID       string
	Status       []ReferenceStatus
	WhatsappSent *bool
	Page         int
	PageSize     int
}

// ReferenceWithVoter joins a reference with the nominating voter's name for
// outreach reports.
type ReferenceWithVoter struct {
	Reference
	VoterName string `db:"voter_name" json:"voterName"`
}
