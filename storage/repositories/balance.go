package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/EggysOnCode/stackex/core/engine"
	"github.com/EggysOnCode/stackex/storage/models"
)

// BalanceRepository is the ledger over Postgres. Every mutating method
// locks the targeted (user, ticker) row with FOR UPDATE inside the
// caller's transaction; two operations on the same row serialize, rows
// with different keys proceed in parallel.
type BalanceRepository struct {
	*BaseRepository[models.Balance]
	db bun.IDB
}

// NewBalanceRepository creates a new balance repository
func NewBalanceRepository(db bun.IDB) *BalanceRepository {
	return &BalanceRepository{
		BaseRepository: NewBaseRepository[models.Balance](db),
		db:             db,
	}
}

// Credit adds amount to the row's total, creating the row if absent.
func (r *BalanceRepository) Credit(ctx context.Context, userID uuid.UUID, ticker string, amount int64) error {
	if amount <= 0 {
		return engine.ErrBadRequest
	}
	b, err := r.lockRow(ctx, userID, ticker, true)
	if err != nil {
		return err
	}
	b.Total += amount
	return r.save(ctx, b)
}

// Debit removes amount from the row's total. Reserved funds are
// untouchable: total - amount must stay >= reserved.
func (r *BalanceRepository) Debit(ctx context.Context, userID uuid.UUID, ticker string, amount int64) error {
	if amount <= 0 {
		return engine.ErrBadRequest
	}
	b, err := r.lockRow(ctx, userID, ticker, false)
	if err != nil {
		return err
	}
	if b == nil || b.Total-amount < b.Reserved {
		return engine.ErrInsufficientFunds
	}
	b.Total -= amount
	return r.save(ctx, b)
}

// Reserve earmarks amount out of the row's available funds. A missing
// row or a shortfall returns ok=false with the row unchanged.
func (r *BalanceRepository) Reserve(ctx context.Context, userID uuid.UUID, ticker string, amount int64) (bool, error) {
	if amount <= 0 {
		return false, engine.ErrBadRequest
	}
	b, err := r.lockRow(ctx, userID, ticker, false)
	if err != nil {
		return false, err
	}
	if b == nil || b.Total-b.Reserved < amount {
		return false, nil
	}
	b.Reserved += amount
	if err := r.save(ctx, b); err != nil {
		return false, err
	}
	return true, nil
}

// Release moves amount from reserved back to available.
func (r *BalanceRepository) Release(ctx context.Context, userID uuid.UUID, ticker string, amount int64) error {
	if amount <= 0 {
		return engine.ErrBadRequest
	}
	b, err := r.lockRow(ctx, userID, ticker, false)
	if err != nil {
		return err
	}
	if b == nil || b.Reserved < amount {
		return engine.ErrInsufficientFunds
	}
	b.Reserved -= amount
	return r.save(ctx, b)
}

// SettleOut removes a previously reserved amount from the account as
// one side of a fill.
func (r *BalanceRepository) SettleOut(ctx context.Context, userID uuid.UUID, ticker string, amount int64) error {
	if amount <= 0 {
		return engine.ErrBadRequest
	}
	b, err := r.lockRow(ctx, userID, ticker, false)
	if err != nil {
		return err
	}
	if b == nil || b.Reserved < amount || b.Total < amount {
		return engine.ErrInsufficientFunds
	}
	b.Reserved -= amount
	b.Total -= amount
	return r.save(ctx, b)
}

// CreditIn adds the asset arriving from a fill; the receiving side
// holds no reservation.
func (r *BalanceRepository) CreditIn(ctx context.Context, userID uuid.UUID, ticker string, amount int64) error {
	return r.Credit(ctx, userID, ticker, amount)
}

// Read returns the row, zero-valued when it does not exist yet.
func (r *BalanceRepository) Read(ctx context.Context, userID uuid.UUID, ticker string) (engine.Balance, error) {
	b := new(models.Balance)
	err := r.db.NewSelect().Model(b).
		Where("user_id = ? AND ticker = ?", userID, ticker).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.Balance{UserID: userID, Ticker: ticker}, nil
	}
	if err != nil {
		return engine.Balance{}, err
	}
	return b.ToEngine(), nil
}

// ListByUser returns every ledger row of one user.
func (r *BalanceRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]engine.Balance, error) {
	var rows []models.Balance
	err := r.db.NewSelect().Model(&rows).
		Where("user_id = ?", userID).
		Order("ticker ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]engine.Balance, len(rows))
	for i, b := range rows {
		out[i] = b.ToEngine()
	}
	return out, nil
}

// LockRows acquires the given rows in the global (user_id, ticker)
// order, creating missing ones as zero rows so both sides of a cross
// always have a lockable row.
func (r *BalanceRepository) LockRows(ctx context.Context, keys ...engine.BalanceKey) error {
	sorted := make([]engine.BalanceKey, 0, len(keys))
	seen := make(map[engine.BalanceKey]bool, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			sorted = append(sorted, k)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })

	for _, k := range sorted {
		if err := r.ensureRow(ctx, k.UserID, k.Ticker); err != nil {
			return err
		}
		b := new(models.Balance)
		err := r.db.NewSelect().Model(b).
			Where("user_id = ? AND ticker = ?", k.UserID, k.Ticker).
			For("UPDATE").
			Scan(ctx)
		if err != nil {
			return fmt.Errorf("lock balance row (%s, %s): %w", k.UserID, k.Ticker, err)
		}
	}
	return nil
}

// lockRow selects the row FOR UPDATE. With create set, a missing row is
// inserted as a zero row first; without it, a missing row returns nil.
func (r *BalanceRepository) lockRow(ctx context.Context, userID uuid.UUID, ticker string, create bool) (*models.Balance, error) {
	if create {
		if err := r.ensureRow(ctx, userID, ticker); err != nil {
			return nil, err
		}
	}

	b := new(models.Balance)
	err := r.db.NewSelect().Model(b).
		Where("user_id = ? AND ticker = ?", userID, ticker).
		For("UPDATE").
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *BalanceRepository) ensureRow(ctx context.Context, userID uuid.UUID, ticker string) error {
	_, err := r.db.NewInsert().
		Model(&models.Balance{UserID: userID, Ticker: ticker}).
		On("CONFLICT (user_id, ticker) DO NOTHING").
		Exec(ctx)
	return err
}

func (r *BalanceRepository) save(ctx context.Context, b *models.Balance) error {
	_, err := r.db.NewUpdate().Model(b).
		Column("total", "reserved").
		WherePK().
		Exec(ctx)
	return err
}
