package dto

import "github.com/girishdigge/graduate-voter-lokmangal-sub002/internal/models"

// MaxReferencesPerSubmission caps a single submission batch.
const MaxReferencesPerSubmission = 10

// ReferenceInput is one candidate reference as typed by the voter.
type ReferenceInput struct {
	Name    string `json:"name" validate:"required,max=255"`
	Contact string `json:"contact" validate:"required"`
}

// SubmitReferencesRequest is the voter's reference batch.
type SubmitReferencesRequest struct {
	References []ReferenceInput `json:"references" validate:"required,min=1,max=10,dive"`
}

// NotificationOutcome reports whether a reference was notified.
type NotificationOutcome struct {
	ReferenceID  string `json:"id"`
	Sent         bool   `json:"sent"`
	FallbackUsed bool   `json:"fallbackUsed,omitempty"`
	Skipped      bool   `json:"skipped,omitempty"`
}

// SubmitReferencesResult is returned to the voter after intake.
type SubmitReferencesResult struct {
	Created              []models.Reference    `json:"created"`
	SkippedExisting      int                   `json:"skippedExisting"`
	Existing             []models.Reference    `json:"existing,omitempty"`
	NotificationOutcomes []NotificationOutcome `json:"notificationOutcomes,omitempty"`
	NotificationsPending bool                  `json:"notificationsPending"`
	Message              string                `json:"message"`
}

// ChangeStatusRequest is the admin payload for a status transition.
type ChangeStatusRequest struct {
	Status models.ReferenceStatus `json:"status"`
}

// StatusChangeResult holds both snapshots of a transitioned reference.
type StatusChangeResult struct {
	Old models.Reference `json:"old"`
	New models.Reference `json:"new"`
}

// ReferenceQuery mirrors supported admin listing filters.
type ReferenceQuery struct {
	UserID       string
	Status       []models.ReferenceStatus
	WhatsappSent *bool
	Page         int
	PageSize     int
}

// ExportFormat selects the outreach report encoding.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)
