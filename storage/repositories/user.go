package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/EggysOnCode/stackex/core/engine"
	"github.com/EggysOnCode/stackex/storage/models"
)

// UserRepository is the identity directory over Postgres.
type UserRepository struct {
	*BaseRepository[models.User]
	db bun.IDB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db bun.IDB) *UserRepository {
	return &UserRepository{
		BaseRepository: NewBaseRepository[models.User](db),
		db:             db,
	}
}

// Create registers a new user.
func (r *UserRepository) Create(ctx context.Context, u *engine.User) error {
	return r.BaseRepository.Create(ctx, models.NewUserModel(u))
}

// Get retrieves one user by id.
func (r *UserRepository) Get(ctx context.Context, id uuid.UUID) (*engine.User, error) {
	m := new(models.User)
	err := r.db.NewSelect().Model(m).Where("u.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m.ToEngine(), nil
}

// GetByAPIKey resolves an api key to its user.
func (r *UserRepository) GetByAPIKey(ctx context.Context, apiKey string) (*engine.User, error) {
	m := new(models.User)
	err := r.db.NewSelect().Model(m).Where("api_key = ?", apiKey).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m.ToEngine(), nil
}

// Deactivate marks a user inactive. Balances and order history remain.
func (r *UserRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.NewUpdate().Model((*models.User)(nil)).
		Set("active = FALSE").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return engine.ErrNotFound
	}
	return nil
}
