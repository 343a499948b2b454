package handlers

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/EggysOnCode/stackex/core/engine"
)

// BalanceHandler serves the authenticated balance listing.
type BalanceHandler struct {
	engine *engine.Engine
	logger *zap.Logger
}

// NewBalanceHandler creates a new balance handler
func NewBalanceHandler(eng *engine.Engine, logger *zap.Logger) *BalanceHandler {
	return &BalanceHandler{
		engine: eng,
		logger: logger,
	}
}

// Balances returns every ledger row of one user.
func (h *BalanceHandler) Balances(ctx context.Context, userID uuid.UUID) ([]engine.Balance, error) {
	return h.engine.Balances(ctx, userID)
}
