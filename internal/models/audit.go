package models

import (
	"encoding/json"
	"time"
)

// Audit actions recorded for references.
const (
	AuditActionCreate = "CREATE"
	AuditActionUpdate = "UPDATE"
)

// AuditEntityReference is the entity type for reference audit entries.
const AuditEntityReference = "REFERENCE"

// AuditLog is an append-only audit trail record. Snapshots never contain an
// unmasked contact number.
type AuditLog struct {
	ID         string          `db:"id" json:"id"`
	UserID     *string         `db:"user_id" json:"userId,omitempty"`
	ActorRole  string          `db:"actor_role" json:"actorRole"`
	Action     string          `db:"action" json:"action"`
	EntityType string          `db:"entity_type" json:"entityType"`
	EntityID   string          `db:"entity_id" json:"entityId"`
	OldValues  json.RawMessage `db:"old_values" json:"oldValues,omitempty"`
	NewValues  json.RawMessage `db:"new_values" json:"newValues,omitempty"`
	IPAddress  string          `db:"ip_address" json:"ipAddress"`
	UserAgent  string          `db:"user_agent" json:"userAgent"`
	Client     string          `db:"client" json:"client"`
	CreatedAt  time.Time       `db:"created_at" json:"createdAt"`
}

// Actor identifies the principal performing a write, with request metadata.
type Actor struct {
	ID        string
	Role      UserRole
	IP        string
	UserAgent string
	Client    string
}
