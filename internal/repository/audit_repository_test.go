package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/girishdigge/graduate-voter-lokmangal-sub002/internal/models"
)

func TestAuditRepositoryCreateAndList(t *testing.T) {
	db, mock, cleanup := newReferenceRepoMock(t)
	defer cleanup()

	repo := NewAuditRepository(db)
	userID := "admin-1"
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WithArgs(sqlmock.AnyArg(), &userID, "ADMIN", models.AuditActionUpdate, models.AuditEntityReference, "ref-1",
			`{"status":"PENDING"}`, `{"status":"CONTACTED"}`, "10.0.0.1", "curl/8", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	entry := &models.AuditLog{
		UserID:     &userID,
		ActorRole:  "ADMIN",
		Action:     models.AuditActionUpdate,
		EntityType: models.AuditEntityReference,
		EntityID:   "ref-1",
		OldValues:  []byte(`{"status":"PENDING"}`),
		NewValues:  []byte(`{"status":"CONTACTED"}`),
		IPAddress:  "10.0.0.1",
		UserAgent:  "curl/8",
	}
	require.NoError(t, repo.CreateAuditLog(context.Background(), entry))
	require.NotEmpty(t, entry.ID)

	rows := sqlmock.NewRows([]string{"id", "user_id", "actor_role", "action", "entity_type", "entity_id", "old_values", "new_values", "ip_address", "user_agent", "client", "created_at"}).
		AddRow(entry.ID, userID, "ADMIN", "UPDATE", "REFERENCE", "ref-1", []byte(`{"status":"PENDING"}`), []byte(`{"status":"CONTACTED"}`), "10.0.0.1", "curl/8", "", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_logs WHERE entity_type = $1 AND entity_id = $2")).
		WithArgs(models.AuditEntityReference, "ref-1").
		WillReturnRows(rows)

	logs, err := repo.ListByEntity(context.Background(), models.AuditEntityReference, "ref-1")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.JSONEq(t, `{"status":"CONTACTED"}`, string(logs[0].NewValues))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepositoryNullSnapshot(t *testing.T) {
	db, mock, cleanup := newReferenceRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "VOTER", models.AuditActionCreate, models.AuditEntityReference, "ref-1",
			nil, `{"status":"PENDING"}`, "", "", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := NewAuditRepository(db).CreateAuditLog(context.Background(), &models.AuditLog{
		ActorRole:  "VOTER",
		Action:     models.AuditActionCreate,
		EntityType: models.AuditEntityReference,
		EntityID:   "ref-1",
		NewValues:  []byte(`{"status":"PENDING"}`),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
