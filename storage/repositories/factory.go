package repositories

import (
	"github.com/uptrace/bun"
)

// Factory builds repositories over one bun.IDB, which is either the
// database handle or an open transaction.
type Factory struct {
	db bun.IDB
}

// NewFactory creates a new repository factory
func NewFactory(db bun.IDB) *Factory {
	return &Factory{db: db}
}

// NewUserRepository creates a new user repository
func (f *Factory) NewUserRepository() *UserRepository {
	return NewUserRepository(f.db)
}

// NewInstrumentRepository creates a new instrument repository
func (f *Factory) NewInstrumentRepository() *InstrumentRepository {
	return NewInstrumentRepository(f.db)
}

// NewBalanceRepository creates a new balance repository
func (f *Factory) NewBalanceRepository() *BalanceRepository {
	return NewBalanceRepository(f.db)
}

// NewOrderRepository creates a new order repository
func (f *Factory) NewOrderRepository() *OrderRepository {
	return NewOrderRepository(f.db)
}

// NewTradeRepository creates a new trade repository
func (f *Factory) NewTradeRepository() *TradeRepository {
	return NewTradeRepository(f.db)
}
