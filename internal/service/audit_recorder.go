package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/girishdigge/graduate-voter-lokmangal-sub002/internal/models"
	appErrors "github.com/girishdigge/graduate-voter-lokmangal-sub002/pkg/errors"
	"github.com/girishdigge/graduate-voter-lokmangal-sub002/pkg/phone"
)

type auditStore interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
	ListByEntity(ctx context.Context, entityType, entityID string) ([]models.AuditLog, error)
}

// referenceSnapshot is the audited view of a reference. Contacts are masked.
type referenceSnapshot struct {
	ReferenceName    string                 `json:"referenceName,omitempty"`
	ReferenceContact string                 `json:"referenceContact,omitempty"`
	Status           models.ReferenceStatus `json:"status,omitempty"`
	WhatsappSent     *bool                  `json:"whatsappSent,omitempty"`
	WhatsappSentAt   *time.Time             `json:"whatsappSentAt,omitempty"`
	StatusUpdatedAt  *time.Time             `json:"statusUpdatedAt,omitempty"`
}

// AuditRecorder appends audit entries for reference writes. Write failures
// are logged and counted, never returned.
type AuditRecorder struct {
	repo    auditStore
	metrics *MetricsService
	logger  *zap.Logger
}

// NewAuditRecorder constructs the recorder.
func NewAuditRecorder(repo auditStore, metrics *MetricsService, logger *zap.Logger) *AuditRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditRecorder{repo: repo, metrics: metrics, logger: logger}
}

// RecordCreate audits a newly created reference on behalf of the submitting voter.
func (a *AuditRecorder) RecordCreate(ctx context.Context, actor models.Actor, ref models.Reference) {
	sent := ref.WhatsappSent
	a.write(ctx, actor, models.AuditActionCreate, ref.ID, nil, &referenceSnapshot{
		ReferenceName:    ref.ReferenceName,
		ReferenceContact: phone.Mask(ref.ReferenceContact),
		Status:           ref.Status,
		WhatsappSent:     &sent,
	})
}

// RecordStatusChange audits an administrator's status transition.
func (a *AuditRecorder) RecordStatusChange(ctx context.Context, actor models.Actor, before, after models.Reference) {
	a.write(ctx, actor, models.AuditActionUpdate, after.ID,
		&referenceSnapshot{Status: before.Status, StatusUpdatedAt: before.StatusUpdatedAt},
		&referenceSnapshot{Status: after.Status, StatusUpdatedAt: after.StatusUpdatedAt},
	)
}

// RecordDelivery audits the outcome of a notification attempt.
func (a *AuditRecorder) RecordDelivery(ctx context.Context, actor models.Actor, ref models.Reference, result DeliveryResult) {
	before := false
	after := result.Sent
	a.write(ctx, actor, models.AuditActionUpdate, ref.ID,
		&referenceSnapshot{ReferenceContact: phone.Mask(ref.ReferenceContact), WhatsappSent: &before},
		&referenceSnapshot{ReferenceContact: phone.Mask(ref.ReferenceContact), WhatsappSent: &after, WhatsappSentAt: result.SentAt},
	)
}

// Trail returns every audit entry for a reference in chronological order.
func (a *AuditRecorder) Trail(ctx context.Context, referenceID string) ([]models.AuditLog, error) {
	if !validID(referenceID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "reference not found")
	}
	entries, err := a.repo.ListByEntity(ctx, models.AuditEntityReference, referenceID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audit trail")
	}
	if entries == nil {
		entries = []models.AuditLog{}
	}
	return entries, nil
}

func (a *AuditRecorder) write(ctx context.Context, actor models.Actor, action, entityID string, before, after *referenceSnapshot) {
	entry := &models.AuditLog{
		ActorRole:  string(actor.Role),
		Action:     action,
		EntityType: models.AuditEntityReference,
		EntityID:   entityID,
		IPAddress:  actor.IP,
		UserAgent:  actor.UserAgent,
		Client:     actor.Client,
	}
	switch {
	case validID(actor.ID):
		id := actor.ID
		entry.UserID = &id
	case actor.ID != "":
		a.logger.Warn("audit actor id is not a UUID", zap.String("entity_id", entityID), zap.String("actor_role", string(actor.Role)))
	}
	if before != nil {
		entry.OldValues, _ = json.Marshal(before)
	}
	if after != nil {
		entry.NewValues, _ = json.Marshal(after)
	}

	if err := a.repo.CreateAuditLog(ctx, entry); err != nil {
		a.metrics.RecordSideEffectFailure(sideEffectAudit)
		a.logger.Warn("failed to write audit log",
			zap.String("entity_id", entityID),
			zap.String("action", action),
			zap.String("actor_role", entry.ActorRole),
			zap.Error(err),
		)
	}
}
