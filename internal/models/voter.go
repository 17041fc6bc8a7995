package models

import "time"

// Voter is the registrant who owns references. Only the fields the
// reference pipeline needs are mapped.
type Voter struct {
	ID            string    `db:"id" json:"id"`
	FullName      string    `db:"full_name" json:"fullName"`
	ContactNumber string    `db:"contact_number" json:"contactNumber"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}
