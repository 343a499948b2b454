package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/EggysOnCode/stackex/core/engine"
)

// PublicHandler serves the unauthenticated surface: registration, the
// instrument list, the L2 book and the trade tape.
type PublicHandler struct {
	engine *engine.Engine
	store  engine.Store
	logger *zap.Logger
}

// NewPublicHandler creates a new public handler
func NewPublicHandler(eng *engine.Engine, store engine.Store, logger *zap.Logger) *PublicHandler {
	return &PublicHandler{
		engine: eng,
		store:  store,
		logger: logger,
	}
}

// Register creates a USER-role account with a fresh api key.
func (h *PublicHandler) Register(ctx context.Context, name string) (*engine.User, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 255 {
		return nil, engine.ErrBadRequest
	}

	user := &engine.User{
		ID:        uuid.New(),
		Name:      name,
		Role:      engine.RoleUser,
		APIKey:    NewAPIKey(),
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.Users().Create(ctx, user); err != nil {
		return nil, err
	}

	h.logger.Info("user registered",
		zap.String("user", user.ID.String()),
		zap.String("name", user.Name),
	)
	return user, nil
}

// Instruments returns the instrument catalog.
func (h *PublicHandler) Instruments(ctx context.Context) ([]engine.Instrument, error) {
	return h.store.Instruments().List(ctx)
}

// Book returns the L2 snapshot for a ticker.
func (h *PublicHandler) Book(ctx context.Context, ticker string, depth int) (*engine.L2Book, error) {
	return h.engine.Book(ctx, ticker, depth)
}

// Tape returns recent trades for a ticker, newest first.
func (h *PublicHandler) Tape(ctx context.Context, ticker string, limit int) ([]engine.Trade, error) {
	return h.engine.Tape(ctx, ticker, limit)
}

// NewAPIKey mints an api key for a new user.
func NewAPIKey() string {
	return fmt.Sprintf("key-%s", uuid.NewString())
}
