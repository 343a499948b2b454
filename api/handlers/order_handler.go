package handlers

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/EggysOnCode/stackex/core/engine"
)

// OrderHandler drives order admission and cancellation, publishing the
// committed results to the message producer.
type OrderHandler struct {
	engine   *engine.Engine
	producer MessageProducer
	logger   *zap.Logger
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(eng *engine.Engine, producer MessageProducer, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		engine:   eng,
		producer: producer,
		logger:   logger,
	}
}

// CreateLimit admits a limit order for the user.
func (h *OrderHandler) CreateLimit(ctx context.Context, userID uuid.UUID, ticker string, dir engine.Direction, qty, price int64) (*engine.Order, error) {
	order, trades, err := h.engine.SubmitLimit(ctx, userID, ticker, dir, qty, price)
	if err != nil {
		return nil, err
	}
	h.publishAdmission(order, trades)
	return order, nil
}

// CreateMarket admits a market order for the user.
func (h *OrderHandler) CreateMarket(ctx context.Context, userID uuid.UUID, ticker string, dir engine.Direction, qty int64) (*engine.Order, error) {
	order, trades, err := h.engine.SubmitMarket(ctx, userID, ticker, dir, qty)
	if err != nil {
		return nil, err
	}
	h.publishAdmission(order, trades)
	return order, nil
}

// Cancel cancels one of the user's resting orders.
func (h *OrderHandler) Cancel(ctx context.Context, userID, orderID uuid.UUID) error {
	order, err := h.engine.Cancel(ctx, userID, orderID)
	if err != nil {
		return err
	}
	if err := h.producer.PublishOrderCancelled(order); err != nil {
		h.logger.Warn("failed to publish order cancellation",
			zap.String("order", order.ID.String()),
			zap.Error(err),
		)
	}
	return nil
}

// Get returns one order by id.
func (h *OrderHandler) Get(ctx context.Context, orderID uuid.UUID) (*engine.Order, error) {
	return h.engine.GetOrder(ctx, orderID)
}

// ListForUser returns the user's orders.
func (h *OrderHandler) ListForUser(ctx context.Context, userID uuid.UUID) ([]engine.Order, error) {
	return h.engine.ListOrders(ctx, userID)
}

func (h *OrderHandler) publishAdmission(order *engine.Order, trades []engine.Trade) {
	if err := h.producer.PublishOrderAccepted(order); err != nil {
		h.logger.Warn("failed to publish order admission",
			zap.String("order", order.ID.String()),
			zap.Error(err),
		)
	}
	for i := range trades {
		if err := h.producer.PublishTradeExecuted(&trades[i]); err != nil {
			h.logger.Warn("failed to publish trade",
				zap.String("trade", trades[i].ID.String()),
				zap.Error(err),
			)
		}
	}
}
