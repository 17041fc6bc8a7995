package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/girishdigge/graduate-voter-lokmangal-sub002/internal/dto"
	"github.com/girishdigge/graduate-voter-lokmangal-sub002/internal/models"
	"github.com/girishdigge/graduate-voter-lokmangal-sub002/pkg/config"
	appErrors "github.com/girishdigge/graduate-voter-lokmangal-sub002/pkg/errors"
	"github.com/girishdigge/graduate-voter-lokmangal-sub002/pkg/phone"
)

type referenceStore interface {
	FindByUserAndContacts(ctx context.Context, userID string, contacts []string) ([]models.Reference, error)
	CountByUser(ctx context.Context, userID string) (int, error)
	CreateMany(ctx context.Context, userID string, batch []models.NewReference) ([]models.Reference, []string, error)
	UpdateDeliveryStatus(ctx context.Context, id string, sent bool, sentAt *time.Time) error
	GetByID(ctx context.Context, id string) (*models.Reference, error)
	ListByUser(ctx context.Context, userID string) ([]models.Reference, error)
	List(ctx context.Context, filter models.ReferenceFilter) ([]models.Reference, int, error)
}

type voterReader interface {
	FindByID(ctx context.Context, id string) (*models.Voter, error)
}

type referenceNotifier interface {
	Dispatch(ctx context.Context, voter models.Voter, refs []models.Reference, onResult func(DeliveryResult)) []DeliveryResult
}

// systemActor attributes writes made by background delivery tasks.
var systemActor = models.Actor{Role: models.RoleSystem}

func referenceCacheKey(userID string) string {
	return "references:voter:" + userID
}

// validID reports whether id can address a row. Voter, reference and audit
// ids are UUID columns, so anything else cannot exist.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// ReferenceService runs reference intake: validation, deduplication,
// transactional creation and the notification fan-out.
type ReferenceService struct {
	refs      referenceStore
	voters    voterReader
	validator *ReferenceValidator
	notifier  referenceNotifier
	effects   *SideEffects
	cache     *CacheService
	metrics   *MetricsService
	cfg       config.PipelineConfig
	cacheTTL  time.Duration
	logger    *zap.Logger

	inflight sync.WaitGroup
}

// NewReferenceService constructs the service.
func NewReferenceService(
	refs referenceStore,
	voters voterReader,
	validator *ReferenceValidator,
	notifier referenceNotifier,
	effects *SideEffects,
	cache *CacheService,
	metrics *MetricsService,
	cfg config.PipelineConfig,
	cacheTTL time.Duration,
	logger *zap.Logger,
) *ReferenceService {
	if validator == nil {
		validator = NewReferenceValidator(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxReferences <= 0 {
		cfg.MaxReferences = dto.MaxReferencesPerSubmission
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 30 * time.Second
	}
	return &ReferenceService{
		refs:      refs,
		voters:    voters,
		validator: validator,
		notifier:  notifier,
		effects:   effects,
		cache:     cache,
		metrics:   metrics,
		cfg:       cfg,
		cacheTTL:  cacheTTL,
		logger:    logger,
	}
}

// Submit validates and stores a voter's reference batch, then notifies the
// new references. Only validation, unknown-voter and persistence failures
// fail the call.
func (s *ReferenceService) Submit(ctx context.Context, actor models.Actor, req dto.SubmitReferencesRequest) (result *dto.SubmitReferencesResult, err error) {
	ctx, span := tracer.Start(ctx, "ReferenceService.Submit")
	defer func() { finishSpan(span, err) }()
	span.SetAttributes(attribute.Int("references.submitted", len(req.References)))

	if !validID(actor.ID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "voter not found")
	}
	voter, err := s.voters.FindByID(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "voter not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load voter")
	}

	candidates, err := s.validator.Validate(voter.ContactNumber, req)
	if err != nil {
		return nil, err
	}

	toCreate, existing, err := s.partition(ctx, voter.ID, candidates)
	if err != nil {
		return nil, err
	}

	if len(toCreate) == 0 {
		s.metrics.RecordSubmission(0, len(existing))
		return &dto.SubmitReferencesResult{
			Created:         []models.Reference{},
			SkippedExisting: len(existing),
			Existing:        existing,
			Message:         fmt.Sprintf("All %d references were already submitted", len(existing)),
		}, nil
	}

	if s.cfg.EnforceTotalCap {
		if err := s.checkTotalCap(ctx, voter.ID, len(toCreate)); err != nil {
			return nil, err
		}
	}

	created, raced, err := s.create(ctx, voter.ID, toCreate)
	if err != nil {
		return nil, err
	}
	if len(raced) > 0 {
		if rows, lookupErr := s.refs.FindByUserAndContacts(ctx, voter.ID, raced); lookupErr == nil {
			existing = append(existing, rows...)
		}
	}
	skipped := len(candidates) - len(created)

	s.metrics.RecordSubmission(len(created), skipped)
	s.invalidate(ctx, voter.ID)
	for _, ref := range created {
		s.effects.AuditCreate(ctx, actor, ref)
		s.effects.Index(ctx, ref)
	}
	s.logger.Info("references submitted",
		zap.String("user_id", voter.ID),
		zap.Int("created", len(created)),
		zap.Int("skipped", skipped),
	)

	result = &dto.SubmitReferencesResult{
		Created:         created,
		SkippedExisting: skipped,
		Existing:        existing,
		Message:         submissionMessage(len(created), skipped),
	}

	done := s.notify(ctx, *voter, created)
	outcomes, pending := s.awaitDelivery(ctx, done)
	result.NotificationsPending = pending
	if !pending {
		applyOutcomes(result, outcomes)
	}
	return result, nil
}

func (s *ReferenceService) partition(ctx context.Context, userID string, candidates []models.NewReference) ([]models.NewReference, []models.Reference, error) {
	ctx, span := tracer.Start(ctx, "ReferenceService.partition")
	defer span.End()

	contacts := make([]string, len(candidates))
	for i, c := range candidates {
		contacts[i] = c.Contact
	}
	existing, err := s.refs.FindByUserAndContacts(ctx, userID, contacts)
	if err != nil {
		span.RecordError(err)
		return nil, nil, appErrors.Persistence(err, "failed to check existing references")
	}

	present := make(map[string]struct{}, len(existing))
	for _, ref := range existing {
		present[ref.ReferenceContact] = struct{}{}
	}
	toCreate := make([]models.NewReference, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := present[c.Contact]; ok {
			continue
		}
		toCreate = append(toCreate, c)
	}
	if existing == nil {
		existing = []models.Reference{}
	}
	span.SetAttributes(attribute.Int("references.new", len(toCreate)), attribute.Int("references.existing", len(existing)))
	return toCreate, existing, nil
}

func (s *ReferenceService) checkTotalCap(ctx context.Context, userID string, adding int) error {
	total, err := s.refs.CountByUser(ctx, userID)
	if err != nil {
		return appErrors.Persistence(err, "failed to count references")
	}
	if total+adding > s.cfg.MaxReferences {
		return appErrors.Validation("invalid reference submission", []appErrors.FieldError{{
			Field:   "references",
			Message: fmt.Sprintf("a voter may hold at most %d references, %d already exist", s.cfg.MaxReferences, total),
		}})
	}
	return nil
}

func (s *ReferenceService) create(ctx context.Context, userID string, batch []models.NewReference) ([]models.Reference, []string, error) {
	ctx, span := tracer.Start(ctx, "ReferenceService.create")
	defer span.End()

	created, raced, err := s.refs.CreateMany(ctx, userID, batch)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create references")
		s.logger.Error("failed to create references", zap.String("user_id", userID), zap.Int("batch", len(batch)), zap.Error(err))
		return nil, nil, appErrors.Persistence(err, "failed to save references")
	}
	return created, raced, nil
}

// notify starts the delivery fan-out detached from the request. The returned
// channel yields the results once every reference has been attempted.
func (s *ReferenceService) notify(ctx context.Context, voter models.Voter, created []models.Reference) <-chan []DeliveryResult {
	done := make(chan []DeliveryResult, 1)
	if s.notifier == nil {
		close(done)
		return done
	}

	byID := make(map[string]models.Reference, len(created))
	for _, ref := range created {
		byID[ref.ID] = ref
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.NotifyTimeout)
		defer cancel()

		done <- s.notifier.Dispatch(nctx, voter, created, func(res DeliveryResult) {
			s.recordDelivery(nctx, byID[res.ReferenceID], res)
		})
		s.invalidate(nctx, voter.ID)
	}()
	return done
}

func (s *ReferenceService) recordDelivery(ctx context.Context, ref models.Reference, res DeliveryResult) {
	var sentAt *time.Time
	if res.Sent {
		sentAt = res.SentAt
	}
	if err := s.refs.UpdateDeliveryStatus(ctx, ref.ID, res.Sent, sentAt); err != nil {
		s.logger.Warn("failed to record delivery status",
			zap.String("reference_id", ref.ID),
			zap.String("contact", phone.Mask(ref.ReferenceContact)),
			zap.Error(err),
		)
		return
	}
	ref.WhatsappSent = res.Sent
	ref.WhatsappSentAt = sentAt
	if !res.Skipped {
		s.effects.AuditDelivery(ctx, systemActor, ref, res)
	}
	s.effects.Index(ctx, ref)
}

func (s *ReferenceService) awaitDelivery(ctx context.Context, done <-chan []DeliveryResult) ([]DeliveryResult, bool) {
	if s.cfg.DeliveryWait <= 0 {
		return nil, true
	}
	timer := time.NewTimer(s.cfg.DeliveryWait)
	defer timer.Stop()
	select {
	case results := <-done:
		return results, false
	case <-timer.C:
		return nil, true
	case <-ctx.Done():
		return nil, true
	}
}

func applyOutcomes(result *dto.SubmitReferencesResult, outcomes []DeliveryResult) {
	byID := make(map[string]DeliveryResult, len(outcomes))
	result.NotificationOutcomes = make([]dto.NotificationOutcome, 0, len(outcomes))
	for _, res := range outcomes {
		byID[res.ReferenceID] = res
		result.NotificationOutcomes = append(result.NotificationOutcomes, dto.NotificationOutcome{
			ReferenceID:  res.ReferenceID,
			Sent:         res.Sent,
			FallbackUsed: res.FallbackUsed,
			Skipped:      res.Skipped,
		})
	}
	for i := range result.Created {
		if res, ok := byID[result.Created[i].ID]; ok && res.Sent {
			result.Created[i].WhatsappSent = true
			result.Created[i].WhatsappSentAt = res.SentAt
		}
	}
}

func submissionMessage(created, skipped int) string {
	if skipped == 0 {
		return fmt.Sprintf("%d references submitted", created)
	}
	return fmt.Sprintf("%d references submitted, %d already existed", created, skipped)
}

func (s *ReferenceService) invalidate(ctx context.Context, userID string) {
	_ = s.cache.Invalidate(ctx, referenceCacheKey(userID))
}

// ListMine returns the voter's own references, served from cache when possible.
func (s *ReferenceService) ListMine(ctx context.Context, userID string) ([]models.Reference, error) {
	if !validID(userID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "voter not found")
	}
	key := referenceCacheKey(userID)
	var cached []models.Reference
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	refs, err := s.refs.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list references")
	}
	if refs == nil {
		refs = []models.Reference{}
	}
	_ = s.cache.Set(ctx, key, refs, s.cacheTTL)
	return refs, nil
}

// List returns an admin page of references.
func (s *ReferenceService) List(ctx context.Context, query dto.ReferenceQuery) ([]models.Reference, *models.Pagination, error) {
	for _, st := range query.Status {
		if !st.Valid() {
			return nil, nil, appErrors.Validation("invalid filter", []appErrors.FieldError{{Field: "status", Message: fmt.Sprintf("unknown status %q", st)}})
		}
	}
	if query.UserID != "" && !validID(query.UserID) {
		return nil, nil, appErrors.Validation("invalid filter", []appErrors.FieldError{{Field: "userId", Message: "must be a UUID"}})
	}
	filter := models.ReferenceFilter{
		UserID:       query.UserID,
		Status:       query.Status,
		WhatsappSent: query.WhatsappSent,
		Page:         query.Page,
		PageSize:     query.PageSize,
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 200 {
		filter.PageSize = 50
	}

	refs, total, err := s.refs.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list references")
	}
	if refs == nil {
		refs = []models.Reference{}
	}
	return refs, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get fetches a single reference.
func (s *ReferenceService) Get(ctx context.Context, id string) (*models.Reference, error) {
	if !validID(id) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "reference not found")
	}
	ref, err := s.refs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "reference not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reference")
	}
	return ref, nil
}

// Shutdown waits for in-flight notification tasks or until ctx expires.
func (s *ReferenceService) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for notifications: %w", ctx.Err())
	}
}
