package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/girishdigge/graduate-voter-lokmangal-sub002/internal/models"
)

// AuditRepository stores append-only audit entries.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// CreateAuditLog stores an audit log entry.
func (r *AuditRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs
	(id, user_id, actor_role, action, entity_type, entity_id, old_values, new_values, ip_address, user_agent, client, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	if _, err := r.db.ExecContext(ctx, query,
		log.ID, log.UserID, log.ActorRole, log.Action, log.EntityType, log.EntityID,
		jsonArg(log.OldValues), jsonArg(log.NewValues),
		log.IPAddress, log.UserAgent, log.Client, log.CreatedAt,
	); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}

// jsonArg passes snapshots as text so lib/pq does not encode them as bytea.
func jsonArg(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// ListByEntity returns the audit trail of one entity in chronological order.
func (r *AuditRepository) ListByEntity(ctx context.Context, entityType, entityID string) ([]models.AuditLog, error) {
	const query = `SELECT id, user_id, actor_role, action, entity_type, entity_id, old_values, new_values,
       ip_address, user_agent, client, created_at
	FROM audit_logs WHERE entity_type = $1 AND entity_id = $2 ORDER BY created_at`
	var logs []models.AuditLog
	if err := r.db.SelectContext(ctx, &logs, query, entityType, entityID); err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return logs, nil
}
