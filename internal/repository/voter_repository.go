package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/girishdigge/graduate-voter-lokmangal-sub002/internal/models"
)

// VoterRepository reads voter records needed by the reference pipeline.
type VoterRepository struct {
	db *sqlx.DB
}

// NewVoterRepository constructs the repository.
func NewVoterRepository(db *sqlx.DB) *VoterRepository {
	return &VoterRepository{db: db}
}

// FindByID fetches a voter. Returns sql.ErrNoRows when absent.
func (r *VoterRepository) FindByID(ctx context.Context, id string) (*models.Voter, error) {
	const query = `SELECT id, full_name, contact_number, created_at FROM voters WHERE id = $1`
	var voter models.Voter
	if err := r.db.GetContext(ctx, &voter, query, id); err != nil {
		return nil, err
	}
	return &voter, nil
}
