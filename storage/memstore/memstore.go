// Package memstore is an in-memory implementation of the engine's
// substrate. One store-wide mutex serializes transactions, which makes
// every transaction trivially atomic and isolated; rollback restores a
// deep snapshot taken at transaction start. It backs the engine tests
// and the STACKEX_INMEM development mode.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/EggysOnCode/stackex/core/engine"
)

type state struct {
	users       map[uuid.UUID]*engine.User
	usersByKey  map[string]uuid.UUID
	instruments map[string]*engine.Instrument
	balances    map[engine.BalanceKey]*engine.Balance
	orders      map[uuid.UUID]*engine.Order
	trades      []engine.Trade
	tradeSeq    int64
}

func newState() *state {
	return &state{
		users:       make(map[uuid.UUID]*engine.User),
		usersByKey:  make(map[string]uuid.UUID),
		instruments: make(map[string]*engine.Instrument),
		balances:    make(map[engine.BalanceKey]*engine.Balance),
		orders:      make(map[uuid.UUID]*engine.Order),
	}
}

func (s *state) clone() *state {
	c := &state{
		users:       make(map[uuid.UUID]*engine.User, len(s.users)),
		usersByKey:  make(map[string]uuid.UUID, len(s.usersByKey)),
		instruments: make(map[string]*engine.Instrument, len(s.instruments)),
		balances:    make(map[engine.BalanceKey]*engine.Balance, len(s.balances)),
		orders:      make(map[uuid.UUID]*engine.Order, len(s.orders)),
		trades:      append([]engine.Trade(nil), s.trades...),
		tradeSeq:    s.tradeSeq,
	}
	for id, u := range s.users {
		cu := *u
		c.users[id] = &cu
	}
	for k, id := range s.usersByKey {
		c.usersByKey[k] = id
	}
	for t, in := range s.instruments {
		ci := *in
		c.instruments[t] = &ci
	}
	for k, b := range s.balances {
		cb := *b
		c.balances[k] = &cb
	}
	for id, o := range s.orders {
		co := *o
		c.orders[id] = &co
	}
	return c
}

// Store satisfies engine.Store.
type Store struct {
	mu sync.Mutex
	st *state
}

func New() *Store {
	return &Store{st: newState()}
}

// RunInTx serializes against every other transaction and accessor call.
// fn mutates the live state; an error swaps the pre-transaction
// snapshot back in, discarding every effect at once.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx engine.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(ctx, &memTx{s: s}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *Store) Ledger() engine.Ledger               { return &ledger{repo{s: s, locking: true}} }
func (s *Store) Orders() engine.OrderStore           { return &orders{repo{s: s, locking: true}} }
func (s *Store) Trades() engine.TradeStore           { return &trades{repo{s: s, locking: true}} }
func (s *Store) Instruments() engine.InstrumentStore { return &instruments{repo{s: s, locking: true}} }
func (s *Store) Users() engine.UserStore             { return &users{repo{s: s, locking: true}} }

// memTx hands out the same repositories without the per-call locking;
// the transaction already holds the store mutex.
type memTx struct {
	s *Store
}

func (t *memTx) Ledger() engine.Ledger               { return &ledger{repo{s: t.s}} }
func (t *memTx) Orders() engine.OrderStore           { return &orders{repo{s: t.s}} }
func (t *memTx) Trades() engine.TradeStore           { return &trades{repo{s: t.s}} }
func (t *memTx) Instruments() engine.InstrumentStore { return &instruments{repo{s: t.s}} }

type repo struct {
	s       *Store
	locking bool
}

func (r *repo) lock() {
	if r.locking {
		r.s.mu.Lock()
	}
}

func (r *repo) unlock() {
	if r.locking {
		r.s.mu.Unlock()
	}
}

// ── Ledger ───────────────────────────────────────────

type ledger struct {
	repo
}

func (l *ledger) row(userID uuid.UUID, ticker string, create bool) *engine.Balance {
	key := engine.BalanceKey{UserID: userID, Ticker: ticker}
	b, ok := l.s.st.balances[key]
	if !ok && create {
		b = &engine.Balance{UserID: userID, Ticker: ticker}
		l.s.st.balances[key] = b
	}
	return b
}

func (l *ledger) Credit(ctx context.Context, userID uuid.UUID, ticker string, amount int64) error {
	if amount <= 0 {
		return engine.ErrBadRequest
	}
	l.lock()
	defer l.unlock()
	l.row(userID, ticker, true).Total += amount
	return nil
}

func (l *ledger) Debit(ctx context.Context, userID uuid.UUID, ticker string, amount int64) error {
	if amount <= 0 {
		return engine.ErrBadRequest
	}
	l.lock()
	defer l.unlock()
	b := l.row(userID, ticker, false)
	if b == nil || b.Total-amount < b.Reserved {
		return engine.ErrInsufficientFunds
	}
	b.Total -= amount
	return nil
}

func (l *ledger) Reserve(ctx context.Context, userID uuid.UUID, ticker string, amount int64) (bool, error) {
	if amount <= 0 {
		return false, engine.ErrBadRequest
	}
	l.lock()
	defer l.unlock()
	b := l.row(userID, ticker, false)
	if b == nil || b.Available() < amount {
		return false, nil
	}
	b.Reserved += amount
	return true, nil
}

func (l *ledger) Release(ctx context.Context, userID uuid.UUID, ticker string, amount int64) error {
	if amount <= 0 {
		return engine.ErrBadRequest
	}
	l.lock()
	defer l.unlock()
	b := l.row(userID, ticker, false)
	if b == nil || b.Reserved < amount {
		return engine.ErrInsufficientFunds
	}
	b.Reserved -= amount
	return nil
}

func (l *ledger) SettleOut(ctx context.Context, userID uuid.UUID, ticker string, amount int64) error {
	if amount <= 0 {
		return engine.ErrBadRequest
	}
	l.lock()
	defer l.unlock()
	b := l.row(userID, ticker, false)
	if b == nil || b.Reserved < amount || b.Total < amount {
		return engine.ErrInsufficientFunds
	}
	b.Reserved -= amount
	b.Total -= amount
	return nil
}

func (l *ledger) CreditIn(ctx context.Context, userID uuid.UUID, ticker string, amount int64) error {
	return l.Credit(ctx, userID, ticker, amount)
}

func (l *ledger) Read(ctx context.Context, userID uuid.UUID, ticker string) (engine.Balance, error) {
	l.lock()
	defer l.unlock()
	if b := l.row(userID, ticker, false); b != nil {
		return *b, nil
	}
	return engine.Balance{UserID: userID, Ticker: ticker}, nil
}

func (l *ledger) ListByUser(ctx context.Context, userID uuid.UUID) ([]engine.Balance, error) {
	l.lock()
	defer l.unlock()
	var out []engine.Balance
	for _, b := range l.s.st.balances {
		if b.UserID == userID {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out, nil
}

func (l *ledger) LockRows(ctx context.Context, keys ...engine.BalanceKey) error {
	// The store mutex is the row lock; just materialize missing rows.
	l.lock()
	defer l.unlock()
	for _, k := range keys {
		l.row(k.UserID, k.Ticker, true)
	}
	return nil
}

// ── Orders ───────────────────────────────────────────

type orders struct {
	repo
}

func (o *orders) Insert(ctx context.Context, ord *engine.Order) error {
	o.lock()
	defer o.unlock()
	cp := *ord
	o.s.st.orders[ord.ID] = &cp
	return nil
}

func (o *orders) Get(ctx context.Context, id uuid.UUID) (*engine.Order, error) {
	o.lock()
	defer o.unlock()
	ord, ok := o.s.st.orders[id]
	if !ok {
		return nil, engine.ErrNotFound
	}
	cp := *ord
	return &cp, nil
}

func (o *orders) GetForUpdate(ctx context.Context, id uuid.UUID) (*engine.Order, error) {
	return o.Get(ctx, id)
}

func (o *orders) ListByUser(ctx context.Context, userID uuid.UUID) ([]engine.Order, error) {
	o.lock()
	defer o.unlock()
	var out []engine.Order
	for _, ord := range o.s.st.orders {
		if ord.UserID == userID {
			out = append(out, *ord)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (o *orders) ListActiveByTicker(ctx context.Context, ticker string) ([]engine.Order, error) {
	o.lock()
	defer o.unlock()
	var out []engine.Order
	for _, ord := range o.s.st.orders {
		if ord.Ticker == ticker && ord.Active() {
			out = append(out, *ord)
		}
	}
	return out, nil
}

func (o *orders) ListActiveForUpdate(ctx context.Context, ticker string, dir engine.Direction) ([]engine.Order, error) {
	o.lock()
	defer o.unlock()
	var out []engine.Order
	for _, ord := range o.s.st.orders {
		if ord.Ticker == ticker && ord.Direction == dir && ord.Type == engine.Limit && ord.Active() {
			out = append(out, *ord)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.Compare(out[i].ID.String(), out[j].ID.String()) < 0
	})
	return out, nil
}

func (o *orders) UpdateFill(ctx context.Context, id uuid.UUID, filled int64, status engine.OrderStatus) error {
	o.lock()
	defer o.unlock()
	ord, ok := o.s.st.orders[id]
	if !ok {
		return engine.ErrNotFound
	}
	ord.Filled = filled
	ord.Status = status
	return nil
}

// ── Trades ───────────────────────────────────────────

type trades struct {
	repo
}

func (t *trades) Append(ctx context.Context, tr *engine.Trade) error {
	t.lock()
	defer t.unlock()
	t.s.st.tradeSeq++
	tr.Seq = t.s.st.tradeSeq
	t.s.st.trades = append(t.s.st.trades, *tr)
	return nil
}

func (t *trades) ListByTicker(ctx context.Context, ticker string, limit int) ([]engine.Trade, error) {
	t.lock()
	defer t.unlock()
	var out []engine.Trade
	for i := len(t.s.st.trades) - 1; i >= 0 && len(out) < limit; i-- {
		if t.s.st.trades[i].Ticker == ticker {
			out = append(out, t.s.st.trades[i])
		}
	}
	return out, nil
}

func (t *trades) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]engine.Trade, error) {
	t.lock()
	defer t.unlock()
	var out []engine.Trade
	for _, tr := range t.s.st.trades {
		if tr.BuyerOrderID == orderID || tr.SellerOrderID == orderID {
			out = append(out, tr)
		}
	}
	return out, nil
}

// ── Instruments ──────────────────────────────────────

type instruments struct {
	repo
}

func (i *instruments) ActiveByTicker(ctx context.Context, ticker string) (bool, error) {
	if ticker == engine.CashTicker {
		return true, nil
	}
	i.lock()
	defer i.unlock()
	in, ok := i.s.st.instruments[ticker]
	return ok && in.Active, nil
}

func (i *instruments) Get(ctx context.Context, ticker string) (*engine.Instrument, error) {
	i.lock()
	defer i.unlock()
	in, ok := i.s.st.instruments[ticker]
	if !ok {
		return nil, engine.ErrNotFound
	}
	cp := *in
	return &cp, nil
}

func (i *instruments) List(ctx context.Context) ([]engine.Instrument, error) {
	i.lock()
	defer i.unlock()
	var out []engine.Instrument
	for _, in := range i.s.st.instruments {
		out = append(out, *in)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Ticker < out[b].Ticker })
	return out, nil
}

func (i *instruments) Insert(ctx context.Context, in *engine.Instrument) error {
	i.lock()
	defer i.unlock()
	cp := *in
	cp.Active = true
	i.s.st.instruments[in.Ticker] = &cp
	return nil
}

func (i *instruments) Delist(ctx context.Context, ticker string) error {
	i.lock()
	defer i.unlock()
	in, ok := i.s.st.instruments[ticker]
	if !ok {
		return engine.ErrNotFound
	}
	in.Active = false
	return nil
}

// ── Users ────────────────────────────────────────────

type users struct {
	repo
}

func (u *users) Create(ctx context.Context, usr *engine.User) error {
	u.lock()
	defer u.unlock()
	cp := *usr
	u.s.st.users[usr.ID] = &cp
	u.s.st.usersByKey[usr.APIKey] = usr.ID
	return nil
}

func (u *users) Get(ctx context.Context, id uuid.UUID) (*engine.User, error) {
	u.lock()
	defer u.unlock()
	usr, ok := u.s.st.users[id]
	if !ok {
		return nil, engine.ErrNotFound
	}
	cp := *usr
	return &cp, nil
}

func (u *users) GetByAPIKey(ctx context.Context, apiKey string) (*engine.User, error) {
	u.lock()
	defer u.unlock()
	id, ok := u.s.st.usersByKey[apiKey]
	if !ok {
		return nil, engine.ErrNotFound
	}
	cp := *u.s.st.users[id]
	return &cp, nil
}

func (u *users) Deactivate(ctx context.Context, id uuid.UUID) error {
	u.lock()
	defer u.unlock()
	usr, ok := u.s.st.users[id]
	if !ok {
		return engine.ErrNotFound
	}
	usr.Active = false
	return nil
}
