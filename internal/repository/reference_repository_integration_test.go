//go:build integration

package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/girishdigge/graduate-voter-lokmangal-sub002/internal/models"
	"github.com/girishdigge/graduate-voter-lokmangal-sub002/pkg/database"
)

func newPostgres(t *testing.T) *sqlx.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("graduate_voters"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = database.MigrateUp(db.DB)
	require.NoError(t, err)
	return db
}

func seedVoter(t *testing.T, db *sqlx.DB, contact string) string {
	t.Helper()
	id := uuid.NewString()
	_, err := db.Exec(`INSERT INTO voters (id, full_name, contact_number) VALUES ($1, $2, $3)`, id, "Meera Patil", contact)
	require.NoError(t, err)
	return id
}

func TestReferenceRepositoryAgainstPostgres(t *testing.T) {
	db := newPostgres(t)
	repo := NewReferenceRepository(db)
	audits := NewAuditRepository(db)
	ctx := context.Background()
	voterID := seedVoter(t, db, "9876500000")

	created, skipped, err := repo.CreateMany(ctx, voterID, []models.NewReference{
		{Name: "Asha", Contact: "9876500001"},
		{Name: "Ravi", Contact: "9876500002"},
	})
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Empty(t, skipped)

	created, skipped, err = repo.CreateMany(ctx, voterID, []models.NewReference{
		{Name: "Asha again", Contact: "9876500001"},
		{Name: "Kiran", Contact: "9876500003"},
	})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, []string{"9876500001"}, skipped)

	count, err := repo.CountByUser(ctx, voterID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	existing, err := repo.FindByUserAndContacts(ctx, voterID, []string{"9876500001", "9999999999"})
	require.NoError(t, err)
	require.Len(t, existing, 1)

	sentAt := time.Now().UTC()
	require.NoError(t, repo.UpdateDeliveryStatus(ctx, created[0].ID, true, &sentAt))
	require.NoError(t, repo.UpdateDeliveryStatus(ctx, created[0].ID, true, &sentAt))

	before, after, err := repo.UpdateStatus(ctx, created[0].ID, models.ReferenceStatusContacted, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ReferenceStatusPending, before.Status)
	assert.Equal(t, models.ReferenceStatusContacted, after.Status)
	assert.NotNil(t, after.StatusUpdatedAt)
	assert.True(t, after.WhatsappSent)

	sent := true
	page, total, err := repo.List(ctx, models.ReferenceFilter{UserID: voterID, WhatsappSent: &sent, Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, page, 1)

	rows, err := repo.ListWithVoter(ctx, models.ReferenceFilter{UserID: voterID})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Meera Patil", rows[0].VoterName)

	require.NoError(t, audits.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &voterID,
		ActorRole:  string(models.RoleVoter),
		Action:     models.AuditActionCreate,
		EntityType: models.AuditEntityReference,
		EntityID:   created[0].ID,
		NewValues:  []byte(`{"referenceContact":"98********"}`),
	}))
	trail, err := audits.ListByEntity(ctx, models.AuditEntityReference, created[0].ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.JSONEq(t, `{"referenceContact":"98********"}`, string(trail[0].NewValues))
}

func TestReferenceRepositoryConcurrentDuplicateIsSkipped(t *testing.T) {
	db := newPostgres(t)
	repo := NewReferenceRepository(db)
	ctx := context.Background()
	voterID := seedVoter(t, db, "9876500010")

	var wg sync.WaitGroup
	results := make([][]models.Reference, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _, errs[i] = repo.CreateMany(ctx, voterID, []models.NewReference{{Name: "Asha", Contact: "9876500011"}})
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, 1, len(results[0])+len(results[1]))
}
