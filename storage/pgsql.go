package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"

	"github.com/EggysOnCode/stackex/core/engine"
	"github.com/EggysOnCode/stackex/storage/models"
	"github.com/EggysOnCode/stackex/storage/repositories"
)

// PgDB is the transactional substrate over Postgres. It satisfies
// engine.Store: the accessor methods auto-commit per call, while
// RunInTx hands the engine a view whose row locks live until commit.
type PgDB struct {
	db          *bun.DB
	factory     *repositories.Factory
	instruments *CachedInstruments
	logger      *zap.Logger
}

// NewPgDB opens the database, creates the schema if needed and wires
// the repositories.
func NewPgDB(dsn string, logger *zap.Logger) (*PgDB, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(dsn),
	))
	db := bun.NewDB(sqldb, pgdialect.New())

	pgdb := &PgDB{
		db:      db,
		factory: repositories.NewFactory(db),
		logger:  logger,
	}
	pgdb.instruments = NewCachedInstruments(pgdb.factory.NewInstrumentRepository(), logger)

	if err := pgdb.setupDb(); err != nil {
		return nil, err
	}

	return pgdb, nil
}

func (pg *PgDB) setupDb() error {
	ctx := context.Background()

	// Use a transaction to ensure atomicity
	return pg.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		tables := []any{
			(*models.User)(nil),
			(*models.Instrument)(nil),
			(*models.Balance)(nil),
			(*models.Order)(nil),
			(*models.Trade)(nil),
		}
		for _, model := range tables {
			if _, err := tx.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
				return err
			}
		}

		indexes := []struct {
			model   any
			name    string
			columns []string
		}{
			{(*models.User)(nil), "idx_users_api_key", []string{"api_key"}},
			{(*models.Order)(nil), "idx_orders_user_id", []string{"user_id"}},
			{(*models.Order)(nil), "idx_orders_ticker_status", []string{"ticker", "status"}},
			{(*models.Trade)(nil), "idx_trades_ticker_seq", []string{"ticker", "seq"}},
			{(*models.Trade)(nil), "idx_trades_buyer_order_id", []string{"buyer_order_id"}},
			{(*models.Trade)(nil), "idx_trades_seller_order_id", []string{"seller_order_id"}},
		}
		for _, idx := range indexes {
			_, err := tx.NewCreateIndex().Model(idx.model).
				Index(idx.name).
				Column(idx.columns...).
				IfNotExists().
				Exec(ctx)
			if err != nil {
				return err
			}
		}

		pg.logger.Info("database tables and indexes created")
		return nil
	})
}

// RunInTx executes fn inside one transaction. Lock timeouts, deadlock
// victims and serialization failures surface as engine.ErrConflict so
// callers can retry.
func (pg *PgDB) RunInTx(ctx context.Context, fn func(ctx context.Context, tx engine.Tx) error) error {
	err := pg.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &pgTx{factory: repositories.NewFactory(tx)})
	})
	return mapPgError(err)
}

// Ledger returns the auto-committing ledger view.
func (pg *PgDB) Ledger() engine.Ledger {
	return pg.factory.NewBalanceRepository()
}

// Orders returns the auto-committing order store view.
func (pg *PgDB) Orders() engine.OrderStore {
	return pg.factory.NewOrderRepository()
}

// Trades returns the auto-committing trade store view.
func (pg *PgDB) Trades() engine.TradeStore {
	return pg.factory.NewTradeRepository()
}

// Instruments returns the catalog behind the advisory cache. Mutating
// decisions never go through here; the engine reads instruments inside
// its transaction.
func (pg *PgDB) Instruments() engine.InstrumentStore {
	return pg.instruments
}

// Users returns the identity directory.
func (pg *PgDB) Users() engine.UserStore {
	return pg.factory.NewUserRepository()
}

// Close closes the database connection
func (pg *PgDB) Close() error {
	return pg.db.Close()
}

// pgTx is the in-transaction view handed to the engine.
type pgTx struct {
	factory *repositories.Factory
}

func (t *pgTx) Ledger() engine.Ledger {
	return t.factory.NewBalanceRepository()
}

func (t *pgTx) Orders() engine.OrderStore {
	return t.factory.NewOrderRepository()
}

func (t *pgTx) Trades() engine.TradeStore {
	return t.factory.NewTradeRepository()
}

func (t *pgTx) Instruments() engine.InstrumentStore {
	return t.factory.NewInstrumentRepository()
}

// Postgres SQLSTATEs the engine treats as retryable conflicts.
const (
	sqlstateSerializationFailure = "40001"
	sqlstateDeadlockDetected     = "40P01"
	sqlstateLockNotAvailable     = "55P03"
)

func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		switch pgErr.Field('C') {
		case sqlstateSerializationFailure, sqlstateDeadlockDetected, sqlstateLockNotAvailable:
			return fmt.Errorf("%w: %v", engine.ErrConflict, err)
		}
	}
	return err
}
