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

var activeStatuses = []string{
	string(engine.StatusNew),
	string(engine.StatusPartiallyExecuted),
}

// OrderRepository persists order records over Postgres.
type OrderRepository struct {
	*BaseRepository[models.Order]
	db bun.IDB
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db bun.IDB) *OrderRepository {
	return &OrderRepository{
		BaseRepository: NewBaseRepository[models.Order](db),
		db:             db,
	}
}

// Insert stores a newly admitted order.
func (r *OrderRepository) Insert(ctx context.Context, o *engine.Order) error {
	return r.BaseRepository.Create(ctx, models.NewOrderModel(o))
}

// Get retrieves one order by id.
func (r *OrderRepository) Get(ctx context.Context, id uuid.UUID) (*engine.Order, error) {
	m := new(models.Order)
	err := r.db.NewSelect().Model(m).Where("o.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m.ToEngine(), nil
}

// GetForUpdate retrieves one order under a row lock.
func (r *OrderRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*engine.Order, error) {
	m := new(models.Order)
	err := r.db.NewSelect().Model(m).Where("o.id = ?", id).For("UPDATE").Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m.ToEngine(), nil
}

// ListByUser retrieves all orders for a specific user
func (r *OrderRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]engine.Order, error) {
	var rows []models.Order
	err := r.db.NewSelect().Model(&rows).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return toEngineOrders(rows), nil
}

// ListActiveByTicker retrieves the resting orders of one ticker, in no
// particular order; the matching engine sorts.
func (r *OrderRepository) ListActiveByTicker(ctx context.Context, ticker string) ([]engine.Order, error) {
	var rows []models.Order
	err := r.db.NewSelect().Model(&rows).
		Where("ticker = ?", ticker).
		Where("status IN (?)", bun.In(activeStatuses)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return toEngineOrders(rows), nil
}

// ListActiveForUpdate locks and returns the resting limit orders on one
// side of a ticker. Rows are locked in id order so concurrent matching
// transactions acquire them without cycles.
func (r *OrderRepository) ListActiveForUpdate(ctx context.Context, ticker string, dir engine.Direction) ([]engine.Order, error) {
	var rows []models.Order
	err := r.db.NewSelect().Model(&rows).
		Where("ticker = ?", ticker).
		Where("direction = ?", string(dir)).
		Where("order_type = ?", string(engine.Limit)).
		Where("status IN (?)", bun.In(activeStatuses)).
		Order("id ASC").
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return toEngineOrders(rows), nil
}

// UpdateFill persists a new fill level and status for one order.
func (r *OrderRepository) UpdateFill(ctx context.Context, id uuid.UUID, filled int64, status engine.OrderStatus) error {
	res, err := r.db.NewUpdate().Model((*models.Order)(nil)).
		Set("filled = ?", filled).
		Set("status = ?", string(status)).
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

func toEngineOrders(rows []models.Order) []engine.Order {
	out := make([]engine.Order, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToEngine()
	}
	return out
}
