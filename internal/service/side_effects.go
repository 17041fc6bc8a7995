package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/girishdigge/graduate-voter-lokmangal-sub002/internal/models"
	"github.com/girishdigge/graduate-voter-lokmangal-sub002/pkg/jobs"
)

// Side-effect job types.
const (
	JobAuditCreate    = "audit.create"
	JobAuditStatus    = "audit.status"
	JobAuditDelivery  = "audit.delivery"
	JobIndexReference = "index.reference"
)

// Side-effect kinds used for failure metrics.
const (
	sideEffectAudit = "audit"
	sideEffectIndex = "index"
)

type auditCreatePayload struct {
	Actor     models.Actor
	Reference models.Reference
}

type auditStatusPayload struct {
	Actor  models.Actor
	Before models.Reference
	After  models.Reference
}

type auditDeliveryPayload struct {
	Actor     models.Actor
	Reference models.Reference
	Result    DeliveryResult
}

// ErrUnknownJob is returned for job types the worker does not handle.
var ErrUnknownJob = errors.New("unknown side-effect job")

// SideEffectWorker executes audit and index jobs.
type SideEffectWorker struct {
	audit   *AuditRecorder
	indexer SearchIndexer
	logger  *zap.Logger
}

// NewSideEffectWorker constructs the worker. A nil indexer becomes a NoopIndexer.
func NewSideEffectWorker(audit *AuditRecorder, indexer SearchIndexer, logger *zap.Logger) *SideEffectWorker {
	if indexer == nil {
		indexer = NoopIndexer{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SideEffectWorker{audit: audit, indexer: indexer, logger: logger}
}

// Handle is a jobs.Handler.
func (w *SideEffectWorker) Handle(ctx context.Context, job jobs.Job) error {
	switch job.Type {
	case JobAuditCreate:
		p, ok := job.Payload.(auditCreatePayload)
		if !ok {
			return fmt.Errorf("%s: unexpected payload %T", job.Type, job.Payload)
		}
		w.audit.RecordCreate(ctx, p.Actor, p.Reference)
	case JobAuditStatus:
		p, ok := job.Payload.(auditStatusPayload)
		if !ok {
			return fmt.Errorf("%s: unexpected payload %T", job.Type, job.Payload)
		}
		w.audit.RecordStatusChange(ctx, p.Actor, p.Before, p.After)
	case JobAuditDelivery:
		p, ok := job.Payload.(auditDeliveryPayload)
		if !ok {
			return fmt.Errorf("%s: unexpected payload %T", job.Type, job.Payload)
		}
		w.audit.RecordDelivery(ctx, p.Actor, p.Reference, p.Result)
	case JobIndexReference:
		ref, ok := job.Payload.(models.Reference)
		if !ok {
			return fmt.Errorf("%s: unexpected payload %T", job.Type, job.Payload)
		}
		return w.indexer.IndexReference(ctx, ref)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownJob, job.Type)
	}
	return nil
}

// overflowLimit caps jobs running detached after the queue rejected them.
const overflowLimit = 32

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// SideEffects submits best-effort work off the request path. Without a queue
// jobs run inline, which keeps tests deterministic.
type SideEffects struct {
	queue   jobEnqueuer
	worker  *SideEffectWorker
	metrics *MetricsService
	logger  *zap.Logger

	overflow sync.WaitGroup
	slots    chan struct{}
}

// NewSideEffects wires the worker behind an optional queue.
func NewSideEffects(queue jobEnqueuer, worker *SideEffectWorker, metrics *MetricsService, logger *zap.Logger) *SideEffects {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SideEffects{queue: queue, worker: worker, metrics: metrics, logger: logger, slots: make(chan struct{}, overflowLimit)}
}

// OnDrop is the queue's permanent-failure hook.
func (s *SideEffects) OnDrop(job jobs.Job, err error) {
	kind := sideEffectAudit
	if job.Type == JobIndexReference {
		kind = sideEffectIndex
	}
	s.metrics.RecordSideEffectFailure(kind)
	s.logger.Warn("side effect dropped", zap.String("job_id", job.ID), zap.String("type", job.Type), zap.Int("attempt", job.Attempt), zap.Error(err))
}

func (s *SideEffects) submit(ctx context.Context, jobType string, payload interface{}) {
	if s == nil || s.worker == nil {
		return
	}
	job := jobs.Job{
		ID:        uuid.NewString(),
		Type:      jobType,
		Payload:   payload,
		Retryable: jobType == JobIndexReference,
	}
	if s.queue == nil {
		s.runInline(ctx, job)
		return
	}
	err := s.queue.Enqueue(job)
	if err == nil {
		return
	}
	select {
	case s.slots <- struct{}{}:
	default:
		s.OnDrop(job, fmt.Errorf("overflow full: %w", err))
		return
	}
	s.logger.Warn("side-effect queue rejected job, running detached", zap.String("type", jobType), zap.Error(err))
	s.overflow.Add(1)
	go func() {
		defer func() {
			<-s.slots
			s.overflow.Done()
		}()
		s.runInline(context.WithoutCancel(ctx), job)
	}()
}

func (s *SideEffects) runInline(ctx context.Context, job jobs.Job) {
	if err := s.worker.Handle(ctx, job); err != nil {
		s.OnDrop(job, err)
	}
}

// Wait blocks until detached overflow jobs finish or ctx expires.
func (s *SideEffects) Wait(ctx context.Context) error {
	if s == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		s.overflow.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AuditCreate queues a CREATE audit entry.
func (s *SideEffects) AuditCreate(ctx context.Context, actor models.Actor, ref models.Reference) {
	s.submit(ctx, JobAuditCreate, auditCreatePayload{Actor: actor, Reference: ref})
}

// AuditStatus queues a status-change audit entry.
func (s *SideEffects) AuditStatus(ctx context.Context, actor models.Actor, before, after models.Reference) {
	s.submit(ctx, JobAuditStatus, auditStatusPayload{Actor: actor, Before: before, After: after})
}

// AuditDelivery queues a delivery audit entry.
func (s *SideEffects) AuditDelivery(ctx context.Context, actor models.Actor, ref models.Reference, result DeliveryResult) {
	s.submit(ctx, JobAuditDelivery, auditDeliveryPayload{Actor: actor, Reference: ref, Result: result})
}

// Index queues a search index upsert.
func (s *SideEffects) Index(ctx context.Context, ref models.Reference) {
	s.submit(ctx, JobIndexReference, ref)
}
