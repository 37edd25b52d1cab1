package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/wabridge/bridge-server-go/internal/database"
	"github.com/wabridge/bridge-server-go/internal/model"
)

type ProfileRepository interface {
	FindByID(ctx context.Context, id string) (*model.Profile, error)
	Create(ctx context.Context, params model.CreateProfileParams) (*model.Profile, error)
	WithTx(tx *sqlx.Tx) ProfileRepository
}

type profileRepo struct {
	db database.DBTX
}

func NewProfileRepository(db *sqlx.DB) ProfileRepository {
	return &profileRepo{db: db}
}

func (r *profileRepo) WithTx(tx *sqlx.Tx) ProfileRepository {
	return &profileRepo{db: tx}
}

func (r *profileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	var profile model.Profile
	err := r.db.GetContext(ctx, &profile, `SELECT * FROM profiles WHERE id = $1`, id)
	return HandleNotFound(&profile, err)
}

func (r *profileRepo) Create(ctx context.Context, params model.CreateProfileParams) (*model.Profile, error) {
	var profile model.Profile
	err := r.db.GetContext(ctx, &profile, `
		INSERT INTO profiles (id, email, name)
		VALUES ($1, $2, $3)
		RETURNING *
	`, params.ID, params.Email, params.Name)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}
