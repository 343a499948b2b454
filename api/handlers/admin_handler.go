package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/EggysOnCode/stackex/core/engine"
)

// AdminHandler serves the administrative surface: instrument listing
// and delisting, user deactivation and balance transfers.
type AdminHandler struct {
	engine *engine.Engine
	store  engine.Store
	logger *zap.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(eng *engine.Engine, store engine.Store, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		engine: eng,
		store:  store,
		logger: logger,
	}
}

// AddInstrument lists (or relists) an instrument.
func (h *AdminHandler) AddInstrument(ctx context.Context, ticker, name string) error {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if !engine.ValidTicker(ticker) || ticker == engine.CashTicker {
		return engine.ErrBadRequest
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = ticker
	}

	err := h.store.Instruments().Insert(ctx, &engine.Instrument{
		Ticker:    ticker,
		Name:      name,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	h.logger.Info("instrument listed", zap.String("ticker", ticker))
	return nil
}

// DelistInstrument deactivates an instrument. Resting orders stay on
// the book and can still be cancelled; new admissions stop.
func (h *AdminHandler) DelistInstrument(ctx context.Context, ticker string) error {
	if !engine.ValidTicker(ticker) || ticker == engine.CashTicker {
		return engine.ErrBadRequest
	}
	if err := h.store.Instruments().Delist(ctx, ticker); err != nil {
		return err
	}
	h.logger.Info("instrument delisted", zap.String("ticker", ticker))
	return nil
}

// DeactivateUser marks a user inactive; balances and history remain.
func (h *AdminHandler) DeactivateUser(ctx context.Context, id uuid.UUID) error {
	if err := h.store.Users().Deactivate(ctx, id); err != nil {
		return err
	}
	h.logger.Info("user deactivated", zap.String("user", id.String()))
	return nil
}

// Deposit credits a user's balance.
func (h *AdminHandler) Deposit(ctx context.Context, userID uuid.UUID, ticker string, amount int64) error {
	if err := h.engine.Deposit(ctx, userID, ticker, amount); err != nil {
		return err
	}
	h.logger.Info("deposit applied",
		zap.String("user", userID.String()),
		zap.String("ticker", ticker),
		zap.Int64("amount", amount),
	)
	return nil
}

// Withdraw debits a user's balance; reserved funds stay untouchable.
func (h *AdminHandler) Withdraw(ctx context.Context, userID uuid.UUID, ticker string, amount int64) error {
	if err := h.engine.Withdraw(ctx, userID, ticker, amount); err != nil {
		return err
	}
	h.logger.Info("withdrawal applied",
		zap.String("user", userID.String()),
		zap.String("ticker", ticker),
		zap.Int64("amount", amount),
	)
	return nil
}
