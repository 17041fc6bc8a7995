package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/girishdigge/graduate-voter-lokmangal-sub002/internal/models"
)

const referenceColumns = `id, user_id, reference_name, reference_contact, status, whatsapp_sent,
       whatsapp_sent_at, status_updated_at, created_at, updated_at`

// ErrTransitionRejected is returned by a StatusGuard to abort an update.
var ErrTransitionRejected = errors.New("status transition rejected")

// StatusGuard inspects the locked row before a status change is applied.
type StatusGuard func(current models.Reference) error

// ReferenceRepository persists voter references.
type ReferenceRepository struct {
	db *sqlx.DB
}

// NewReferenceRepository constructs the repository.
func NewReferenceRepository(db *sqlx.DB) *ReferenceRepository {
	return &ReferenceRepository{db: db}
}

// FindByUserAndContacts returns the voter's references whose contact is in contacts.
func (r *ReferenceRepository) FindByUserAndContacts(ctx context.Context, userID string, contacts []string) ([]models.Reference, error) {
	if len(contacts) == 0 {
		return []models.Reference{}, nil
	}
	query := `SELECT ` + referenceColumns + ` FROM voter_references
	WHERE user_id = $1 AND reference_contact = ANY($2) ORDER BY created_at`
	var refs []models.Reference
	if err := r.db.SelectContext(ctx, &refs, query, userID, pq.Array(contacts)); err != nil {
		return nil, fmt.Errorf("find references by contact: %w", err)
	}
	return refs, nil
}

// CountByUser counts every reference a voter owns.
func (r *ReferenceRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM voter_references WHERE user_id = $1`, userID); err != nil {
		return 0, fmt.Errorf("count references: %w", err)
	}
	return total, nil
}

// CreateMany inserts the batch in a single transaction. Rows that collide with
// an existing (user_id, reference_contact) pair are skipped and their contacts
// returned; any other failure rolls back the whole batch.
func (r *ReferenceRepository) CreateMany(ctx context.Context, userID string, batch []models.NewReference) (created []models.Reference, skipped []string, err error) {
	if len(batch) == 0 {
		return []models.Reference{}, nil, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin reference transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	insertQuery := `INSERT INTO voter_references
	(id, user_id, reference_name, reference_contact, status, whatsapp_sent, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, FALSE, $6, $6)
	ON CONFLICT (user_id, reference_contact) DO NOTHING
	RETURNING ` + referenceColumns

	now := time.Now().UTC()
	created = make([]models.Reference, 0, len(batch))
	for _, item := range batch {
		var ref models.Reference
		err = tx.GetContext(ctx, &ref, insertQuery, uuid.NewString(), userID, item.Name, item.Contact, models.ReferenceStatusPending, now)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				skipped = append(skipped, item.Contact)
				err = nil
				continue
			}
			return nil, nil, fmt.Errorf("insert reference: %w", err)
		}
		created = append(created, ref)
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit references: %w", err)
	}
	return created, skipped, nil
}

// UpdateDeliveryStatus records the notification outcome for a reference.
func (r *ReferenceRepository) UpdateDeliveryStatus(ctx context.Context, id string, sent bool, sentAt *time.Time) error {
	const query = `UPDATE voter_references SET whatsapp_sent = $2, whatsapp_sent_at = $3, updated_at = NOW() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, sent, sentAt)
	if err != nil {
		return fmt.Errorf("update delivery status: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateStatus locks the row, runs guard against the current state and applies
// the new status. It returns both snapshots.
func (r *ReferenceRepository) UpdateStatus(ctx context.Context, id string, status models.ReferenceStatus, guard StatusGuard) (before *models.Reference, after *models.Reference, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin status transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current models.Reference
	if err = tx.GetContext(ctx, &current, `SELECT `+referenceColumns+` FROM voter_references WHERE id = $1 FOR UPDATE`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("lock reference: %w", err)
	}
	if guard != nil {
		if err = guard(current); err != nil {
			return nil, nil, err
		}
	}

	var updated models.Reference
	updateQuery := `UPDATE voter_references SET status = $2, status_updated_at = $3, updated_at = $3
	WHERE id = $1 RETURNING ` + referenceColumns
	if err = tx.GetContext(ctx, &updated, updateQuery, id, status, time.Now().UTC()); err != nil {
		return nil, nil, fmt.Errorf("update reference status: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit reference status: %w", err)
	}
	return &current, &updated, nil
}

// GetByID fetches a reference by identifier.
func (r *ReferenceRepository) GetByID(ctx context.Context, id string) (*models.Reference, error) {
	var ref models.Reference
	if err := r.db.GetContext(ctx, &ref, `SELECT `+referenceColumns+` FROM voter_references WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &ref, nil
}

// ListByUser returns every reference of a voter, newest first.
func (r *ReferenceRepository) ListByUser(ctx context.Context, userID string) ([]models.Reference, error) {
	query := `SELECT ` + referenceColumns + ` FROM voter_references WHERE user_id = $1 ORDER BY created_at DESC`
	var refs []models.Reference
	if err := r.db.SelectContext(ctx, &refs, query, userID); err != nil {
		return nil, fmt.Errorf("list voter references: %w", err)
	}
	return refs, nil
}

func buildReferenceFilter(filter models.ReferenceFilter) (string, []interface{}) {
	args := make([]interface{}, 0, 4)
	conditions := make([]string, 0, 3)
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conditions = append(conditions, fmt.Sprintf("r.user_id = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("r.status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.WhatsappSent != nil {
		args = append(args, *filter.WhatsappSent)
		conditions = append(conditions, fmt.Sprintf("r.whatsapp_sent = $%d", len(args)))
	}
	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// List returns a filtered page of references with the total match count.
func (r *ReferenceRepository) List(ctx context.Context, filter models.ReferenceFilter) ([]models.Reference, int, error) {
	where, args := buildReferenceFilter(filter)

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM voter_references r`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count references: %w", err)
	}

	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}

	query := `SELECT r.id, r.user_id, r.reference_name, r.reference_contact, r.status, r.whatsapp_sent,
       r.whatsapp_sent_at, r.status_updated_at, r.created_at, r.updated_at
	FROM voter_references r` + where + fmt.Sprintf(" ORDER BY r.created_at DESC LIMIT %d OFFSET %d", pageSize, (page-1)*pageSize)

	var refs []models.Reference
	if err := r.db.SelectContext(ctx, &refs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list references: %w", err)
	}
	return refs, total, nil
}

// ListWithVoter returns every reference matching filter joined with its
// voter's name, unpaginated, for outreach exports.
func (r *ReferenceRepository) ListWithVoter(ctx context.Context, filter models.ReferenceFilter) ([]models.ReferenceWithVoter, error) {
	where, args := buildReferenceFilter(filter)
	query := `SELECT r.id, r.user_id, r.reference_name, r.reference_contact, r.status, r.whatsapp_sent,
       r.whatsapp_sent_at, r.status_updated_at, r.created_at, r.updated_at, v.full_name AS voter_name
	FROM voter_references r JOIN voters v ON v.id = r.user_id` + where + " ORDER BY v.full_name, r.created_at"

	var rows []models.ReferenceWithVoter
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list references with voter: %w", err)
	}
	return rows, nil
}
