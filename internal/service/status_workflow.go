package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/girishdigge/graduate-voter-lokmangal-sub002/internal/dto"
	"github.com/girishdigge/graduate-voter-lokmangal-sub002/internal/models"
	"github.com/girishdigge/graduate-voter-lokmangal-sub002/internal/repository"
	appErrors "github.com/girishdigge/graduate-voter-lokmangal-sub002/pkg/errors"
)

type statusStore interface {
	UpdateStatus(ctx context.Context, id string, status models.ReferenceStatus, guard repository.StatusGuard) (*models.Reference, *models.Reference, error)
}

// StatusWorkflow applies administrator-driven reference status transitions.
type StatusWorkflow struct {
	repo        statusStore
	effects     *SideEffects
	cache       *CacheService
	metrics     *MetricsService
	forwardOnly bool
	logger      *zap.Logger
}

// NewStatusWorkflow constructs the workflow. With forwardOnly set, moving a
// reference back along PENDING → CONTACTED → APPLIED is rejected.
func NewStatusWorkflow(repo statusStore, effects *SideEffects, cache *CacheService, metrics *MetricsService, forwardOnly bool, logger *zap.Logger) *StatusWorkflow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusWorkflow{repo: repo, effects: effects, cache: cache, metrics: metrics, forwardOnly: forwardOnly, logger: logger}
}

// ChangeStatus transitions a reference and returns both snapshots.
func (w *StatusWorkflow) ChangeStatus(ctx context.Context, id string, status models.ReferenceStatus, actor models.Actor) (result *dto.StatusChangeResult, err error) {
	ctx, span := tracer.Start(ctx, "StatusWorkflow.ChangeStatus")
	defer func() { finishSpan(span, err) }()
	span.SetAttributes(attribute.String("reference.id", id), attribute.String("reference.status", string(status)))

	if !status.Valid() {
		return nil, appErrors.Validation("invalid status", []appErrors.FieldError{{
			Field:   "status",
			Message: fmt.Sprintf("must be one of %s, %s, %s", models.ReferenceStatusPending, models.ReferenceStatusContacted, models.ReferenceStatusApplied),
		}})
	}
	if !actor.Role.IsAdmin() {
		return nil, appErrors.ErrForbidden
	}
	if !validID(id) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "reference not found")
	}

	var guard repository.StatusGuard
	if w.forwardOnly {
		guard = func(current models.Reference) error {
			if status.Rank() < current.Status.Rank() {
				return repository.ErrTransitionRejected
			}
			return nil
		}
	}

	before, after, err := w.repo.UpdateStatus(ctx, id, status, guard)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "reference not found")
		case errors.Is(err, repository.ErrTransitionRejected):
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("cannot move reference back to %s", status))
		default:
			return nil, appErrors.Persistence(err, "failed to update reference status")
		}
	}

	w.metrics.RecordStatusChange(string(after.Status))
	w.effects.AuditStatus(ctx, actor, *before, *after)
	w.effects.Index(ctx, *after)
	_ = w.cache.Invalidate(ctx, referenceCacheKey(after.UserID))

	w.logger.Info("reference status changed",
		zap.String("reference_id", id),
		zap.String("from", string(before.Status)),
		zap.String("to", string(after.Status)),
		zap.String("admin_id", actor.ID),
	)
	return &dto.StatusChangeResult{Old: *before, New: *after}, nil
}
