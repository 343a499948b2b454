package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/EggysOnCode/stackex/core/engine"
	"github.com/EggysOnCode/stackex/storage/models"
)

// TradeRepository is the append-only trade tape over Postgres.
type TradeRepository struct {
	*BaseRepository[models.Trade]
	db bun.IDB
}

// NewTradeRepository creates a new trade repository
func NewTradeRepository(db bun.IDB) *TradeRepository {
	return &TradeRepository{
		BaseRepository: NewBaseRepository[models.Trade](db),
		db:             db,
	}
}

// Append stores one trade inside the fill's transaction and reads back
// the database-assigned sequence number.
func (r *TradeRepository) Append(ctx context.Context, t *engine.Trade) error {
	m := models.NewTradeModel(t)
	_, err := r.db.NewInsert().Model(m).Returning("seq").Exec(ctx)
	if err != nil {
		return err
	}
	t.Seq = m.Seq
	return nil
}

// ListByTicker returns up to limit trades for one ticker, newest first.
func (r *TradeRepository) ListByTicker(ctx context.Context, ticker string, limit int) ([]engine.Trade, error) {
	var rows []models.Trade
	err := r.db.NewSelect().Model(&rows).
		Where("ticker = ?", ticker).
		Order("seq DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return toEngineTrades(rows), nil
}

// ListByOrder returns the trades referencing an order on either side,
// oldest first.
func (r *TradeRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]engine.Trade, error) {
	var rows []models.Trade
	err := r.db.NewSelect().Model(&rows).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("buyer_order_id = ?", orderID).
				WhereOr("seller_order_id = ?", orderID)
		}).
		Order("seq ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return toEngineTrades(rows), nil
}

func toEngineTrades(rows []models.Trade) []engine.Trade {
	out := make([]engine.Trade, len(rows))
	for i := range rows {
		out[i] = rows[i].ToEngine()
	}
	return out
}
