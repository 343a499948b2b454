package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"github.com/EggysOnCode/stackex/core/engine"
	"github.com/EggysOnCode/stackex/storage/models"
)

// InstrumentRepository is the instrument catalog over Postgres.
type InstrumentRepository struct {
	*BaseRepository[models.Instrument]
	db bun.IDB
}

// NewInstrumentRepository creates a new instrument repository
func NewInstrumentRepository(db bun.IDB) *InstrumentRepository {
	return &InstrumentRepository{
		BaseRepository: NewBaseRepository[models.Instrument](db),
		db:             db,
	}
}

// ActiveByTicker reports whether an active instrument is listed under
// ticker. The synthetic cash ticker is always active.
func (r *InstrumentRepository) ActiveByTicker(ctx context.Context, ticker string) (bool, error) {
	if ticker == engine.CashTicker {
		return true, nil
	}
	exists, err := r.db.NewSelect().Model((*models.Instrument)(nil)).
		Where("ticker = ?", ticker).
		Where("active = TRUE").
		Exists(ctx)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// Get retrieves one instrument by ticker.
func (r *InstrumentRepository) Get(ctx context.Context, ticker string) (*engine.Instrument, error) {
	m := new(models.Instrument)
	err := r.db.NewSelect().Model(m).Where("ticker = ?", ticker).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m.ToEngine(), nil
}

// List returns the whole catalog, delisted instruments included,
// sorted alphabetically by ticker.
func (r *InstrumentRepository) List(ctx context.Context) ([]engine.Instrument, error) {
	var rows []models.Instrument
	err := r.db.NewSelect().Model(&rows).Order("ticker ASC").Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]engine.Instrument, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToEngine()
	}
	return out, nil
}

// Insert lists an instrument, reactivating and renaming it if the
// ticker was listed before.
func (r *InstrumentRepository) Insert(ctx context.Context, in *engine.Instrument) error {
	_, err := r.db.NewInsert().Model(models.NewInstrumentModel(in)).
		On("CONFLICT (ticker) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("active = TRUE").
		Exec(ctx)
	return err
}

// Delist deactivates an instrument. Resting orders survive; only new
// admissions stop.
func (r *InstrumentRepository) Delist(ctx context.Context, ticker string) error {
	res, err := r.db.NewUpdate().Model((*models.Instrument)(nil)).
		Set("active = FALSE").
		Where("ticker = ?", ticker).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return engine.ErrNotFound
	}
	return nil
}
