package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/girishdigge/graduate-voter-lokmangal-sub002/internal/models"
	"github.com/girishdigge/graduate-voter-lokmangal-sub002/internal/repository"
	appErrors "github.com/girishdigge/graduate-voter-lokmangal-sub002/pkg/errors"
)

type referenceRepoStub struct {
	mu         sync.Mutex
	rows       map[string]*models.Reference
	seq        int
	failCreate error
	deliveries int
}

func newReferenceRepoStub() *referenceRepoStub {
	return &referenceRepoStub{rows: make(map[string]*models.Reference)}
}

func (r *referenceRepoStub) FindByUserAndContacts(ctx context.Context, userID string, contacts []string) ([]models.Reference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wanted := make(map[string]struct{}, len(contacts))
	for _, c := range contacts {
		wanted[c] = struct{}{}
	}
	var out []models.Reference
	for _, ref := range r.rows {
		if _, ok := wanted[ref.ReferenceContact]; ok && ref.UserID == userID {
			out = append(out, *ref)
		}
	}
	return out, nil
}

func (r *referenceRepoStub) CountByUser(ctx context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, ref := range r.rows {
		if ref.UserID == userID {
			total++
		}
	}
	return total, nil
}

func (r *referenceRepoStub) CreateMany(ctx context.Context, userID string, batch []models.NewReference) ([]models.Reference, []string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreate != nil {
		return nil, nil, r.failCreate
	}
	now := time.Now().UTC()
	staged := make([]models.Reference, 0, len(batch))
	var skipped []string
	for _, item := range batch {
		duplicate := false
		for _, ref := range r.rows {
			if ref.UserID == userID && ref.ReferenceContact == item.Contact {
				duplicate = true
			}
		}
		if duplicate {
			skipped = append(skipped, item.Contact)
			continue
		}
		r.seq++
		staged = append(staged, models.Reference{
			ID:               fmt.Sprintf("00000000-0000-0000-0000-%012d", r.seq),
			UserID:           userID,
			ReferenceName:    item.Name,
			ReferenceContact: item.Contact,
			Status:           models.ReferenceStatusPending,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
	}
	for i := range staged {
		ref := staged[i]
		r.rows[ref.ID] = &ref
	}
	return staged, skipped, nil
}

func (r *referenceRepoStub) UpdateDeliveryStatus(ctx context.Context, id string, sent bool, sentAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, ok := r.rows[id]
	if !ok {
		return sql.ErrNoRows
	}
	r.deliveries++
	ref.WhatsappSent = sent
	ref.WhatsappSentAt = sentAt
	return nil
}

func (r *referenceRepoStub) UpdateStatus(ctx context.Context, id string, status models.ReferenceStatus, guard repository.StatusGuard) (*models.Reference, *models.Reference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, ok := r.rows[id]
	if !ok {
		return nil, nil, sql.ErrNoRows
	}
	before := *ref
	if guard != nil {
		if err := guard(before); err != nil {
			return nil, nil, err
		}
	}
	now := time.Now().UTC()
	ref.Status = status
	ref.StatusUpdatedAt = &now
	ref.UpdatedAt = now
	after := *ref
	return &before, &after, nil
}

func (r *referenceRepoStub) GetByID(ctx context.Context, id string) (*models.Reference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, ok := r.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *ref
	return &copy, nil
}

func (r *referenceRepoStub) ListByUser(ctx context.Context, userID string) ([]models.Reference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Reference
	for _, ref := range r.rows {
		if ref.UserID == userID {
			out = append(out, *ref)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *referenceRepoStub) List(ctx context.Context, filter models.ReferenceFilter) ([]models.Reference, int, error) {
	refs, _ := r.ListByUser(ctx, filter.UserID)
	return refs, len(refs), nil
}

func (r *referenceRepoStub) byContact(contact string) *models.Reference {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ref := range r.rows {
		if ref.ReferenceContact == contact {
			copy := *ref
			return &copy
		}
	}
	return nil
}

func (r *referenceRepoStub) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

type voterRepoStub struct {
	voters map[string]*models.Voter
}

func (v *voterRepoStub) FindByID(ctx context.Context, id string) (*models.Voter, error) {
	if voter, ok := v.voters[id]; ok {
		return voter, nil
	}
	return nil, sql.ErrNoRows
}

type auditRepoStub struct {
	mu   sync.Mutex
	logs []models.AuditLog
	err  error
}

func (a *auditRepoStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.logs = append(a.logs, *log)
	return nil
}

func (a *auditRepoStub) ListByEntity(ctx context.Context, entityType, entityID string) ([]models.AuditLog, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []models.AuditLog
	for _, log := range a.logs {
		if log.EntityType == entityType && log.EntityID == entityID {
			out = append(out, log)
		}
	}
	return out, nil
}

func (a *auditRepoStub) byAction(action string) []models.AuditLog {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []models.AuditLog
	for _, log := range a.logs {
		if log.Action == action {
			out = append(out, log)
		}
	}
	return out
}

type indexerStub struct {
	mu      sync.Mutex
	indexed []models.Reference
	err     error
}

func (i *indexerStub) IndexReference(ctx context.Context, ref models.Reference) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.err != nil {
		return i.err
	}
	i.indexed = append(i.indexed, ref)
	return nil
}

func (i *indexerStub) count() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.indexed)
}

type memoryCacheRepo struct {
	mu      sync.Mutex
	entries map[string][]models.Reference
	deletes int
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{entries: make(map[string][]models.Reference)}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	refs, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	out, ok := dest.(*[]models.Reference)
	if !ok {
		return errors.New("unexpected cache destination")
	}
	*out = append([]models.Reference(nil), refs...)
	return nil
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	refs, ok := value.([]models.Reference)
	if !ok {
		return errors.New("unexpected cache value")
	}
	m.entries[key] = append([]models.Reference(nil), refs...)
	return nil
}

func (m *memoryCacheRepo) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.entries, key)
	}
	m.deletes++
	return nil
}

func (m *memoryCacheRepo) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok
}
