package repositories

import (
	"context"

	"github.com/uptrace/bun"
)

// BaseRepository provides the generic operations shared by the entity
// repositories. It runs against any bun.IDB, so the same repository
// works on the database handle and inside a transaction.
type BaseRepository[T any] struct {
	db bun.IDB
}

// NewBaseRepository creates a new base repository
func NewBaseRepository[T any](db bun.IDB) *BaseRepository[T] {
	return &BaseRepository[T]{db: db}
}

// Create inserts a new entity
func (r *BaseRepository[T]) Create(ctx context.Context, entity *T) error {
	_, err := r.db.NewInsert().Model(entity).Exec(ctx)
	return err
}

// List retrieves entities with pagination
func (r *BaseRepository[T]) List(ctx context.Context, limit, offset int) ([]T, error) {
	var entities []T
	query := r.db.NewSelect().Model(&entities)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	err := query.Scan(ctx)
	return entities, err
}

// Count returns the total number of entities
func (r *BaseRepository[T]) Count(ctx context.Context) (int64, error) {
	var entity T
	count, err := r.db.NewSelect().Model(&entity).Count(ctx)
	return int64(count), err
}
