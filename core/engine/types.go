package engine

import (
	"context"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// CashTicker is the synthetic settlement-currency ticker. It is always
// active, carries the cash leg of every fill, and is never listed or
// matched against directly.
const CashTicker = "CASH"

var tickerPattern = regexp.MustCompile(`^[A-Z]{2,10}$`)

// ValidTicker reports whether s has the shape of an instrument ticker.
func ValidTicker(s string) bool {
	return tickerPattern.MatchString(s)
}

type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// Opposite returns the counter side of d.
func (d Direction) Opposite() Direction {
	if d == Buy {
		return Sell
	}
	return Buy
}

type OrderType string

const (
	Limit  OrderType = "LIMIT"
	Market OrderType = "MARKET"
)

type OrderStatus string

const (
	StatusNew               OrderStatus = "NEW"
	StatusPartiallyExecuted OrderStatus = "PARTIALLY_EXECUTED"
	StatusExecuted          OrderStatus = "EXECUTED"
	StatusCancelled         OrderStatus = "CANCELLED"
)

// Terminal reports whether s is irrevocable.
func (s OrderStatus) Terminal() bool {
	return s == StatusExecuted || s == StatusCancelled
}

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// User is the identity the engine reads; issuing and revoking api keys
// belongs to the HTTP shell.
type User struct {
	ID        uuid.UUID
	Name      string
	Role      Role
	APIKey    string
	Active    bool
	CreatedAt time.Time
}

type Instrument struct {
	Ticker    string
	Name      string
	Active    bool
	CreatedAt time.Time
}

// Balance is one ledger row. available = Total - Reserved, and
// 0 <= Reserved <= Total holds between operations.
type Balance struct {
	UserID   uuid.UUID
	Ticker   string
	Total    int64
	Reserved int64
}

// Available returns the spendable part of the row.
func (b Balance) Available() int64 {
	return b.Total - b.Reserved
}

// BalanceKey addresses one ledger row. Rows are locked in ascending key
// order whenever a single transaction touches more than one.
type BalanceKey struct {
	UserID uuid.UUID
	Ticker string
}

// Less imposes the global lock order on balance rows.
func (k BalanceKey) Less(o BalanceKey) bool {
	if k.UserID != o.UserID {
		return k.UserID.String() < o.UserID.String()
	}
	return k.Ticker < o.Ticker
}

// Order is the tagged order variant: Price is meaningful iff Type == Limit.
type Order struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Ticker    string
	Direction Direction
	Type      OrderType
	Price     int64
	Quantity  int64
	Filled    int64
	Status    OrderStatus
	CreatedAt time.Time
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() int64 {
	return o.Quantity - o.Filled
}

// Active reports whether the order still rests on the book.
func (o *Order) Active() bool {
	return o.Status == StatusNew || o.Status == StatusPartiallyExecuted
}

// Trade is one executed cross. Append-only, never mutated.
type Trade struct {
	ID            uuid.UUID
	Seq           int64
	Ticker        string
	BuyerOrderID  uuid.UUID
	SellerOrderID uuid.UUID
	Price         int64
	Quantity      int64
	CreatedAt     time.Time
}

// Level is one aggregated price level of the L2 book.
type Level struct {
	Price int64 `json:"price"`
	Qty   int64 `json:"qty"`
}

// L2Book is the depth-aggregated view of one ticker: bids best-first
// (descending price), asks best-first (ascending price).
type L2Book struct {
	Bids []Level `json:"bid_levels"`
	Asks []Level `json:"ask_levels"`
}

// Ledger is the balance subsystem. Every mutating call acquires a row
// lock on the targeted (user, ticker) row; LockRows pre-acquires a set
// of rows in the global order so later per-row calls cannot deadlock.
type Ledger interface {
	// Credit adds to total. Administrative deposits.
	Credit(ctx context.Context, userID uuid.UUID, ticker string, amount int64) error
	// Debit removes from total, refusing to touch reserved funds.
	Debit(ctx context.Context, userID uuid.UUID, ticker string, amount int64) error
	// Reserve earmarks part of available; ok=false leaves the row unchanged.
	Reserve(ctx context.Context, userID uuid.UUID, ticker string, amount int64) (bool, error)
	// Release moves previously reserved funds back to available.
	Release(ctx context.Context, userID uuid.UUID, ticker string, amount int64) error
	// SettleOut removes a previously reserved amount from the account.
	SettleOut(ctx context.Context, userID uuid.UUID, ticker string, amount int64) error
	// CreditIn adds the counterparty asset arriving from a fill.
	CreditIn(ctx context.Context, userID uuid.UUID, ticker string, amount int64) error
	// Read returns the row, reporting zeroes for a missing one.
	Read(ctx context.Context, userID uuid.UUID, ticker string) (Balance, error)
	// ListByUser returns every row of one user.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Balance, error)
	// LockRows acquires the given rows in global order, creating missing
	// ones as zero rows.
	LockRows(ctx context.Context, keys ...BalanceKey) error
}

// OrderStore persists order records. Listing methods impose no ordering;
// the engine sorts candidates itself.
type OrderStore interface {
	Insert(ctx context.Context, o *Order) error
	Get(ctx context.Context, id uuid.UUID) (*Order, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Order, error)
	ListActiveByTicker(ctx context.Context, ticker string) ([]Order, error)
	// ListActiveForUpdate locks and returns the active resting orders on
	// one side of a ticker, acquiring row locks in order-id order.
	ListActiveForUpdate(ctx context.Context, ticker string, dir Direction) ([]Order, error)
	UpdateFill(ctx context.Context, id uuid.UUID, filled int64, status OrderStatus) error
}

// TradeStore is the append-only trade tape.
type TradeStore interface {
	Append(ctx context.Context, t *Trade) error
	// ListByTicker returns up to limit trades, newest first.
	ListByTicker(ctx context.Context, ticker string, limit int) ([]Trade, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]Trade, error)
}

// InstrumentStore is the instrument catalog. The engine itself only
// consumes ActiveByTicker; the rest serves the admin surface.
type InstrumentStore interface {
	ActiveByTicker(ctx context.Context, ticker string) (bool, error)
	Get(ctx context.Context, ticker string) (*Instrument, error)
	List(ctx context.Context) ([]Instrument, error)
	Insert(ctx context.Context, in *Instrument) error
	Delist(ctx context.Context, ticker string) error
}

// UserStore is the identity directory consumed by the HTTP shell.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Get(ctx context.Context, id uuid.UUID) (*User, error)
	GetByAPIKey(ctx context.Context, apiKey string) (*User, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// Tx is the view of the substrate inside one transaction. All reads are
// authoritative; row locks taken through it are held until commit or abort.
type Tx interface {
	Ledger() Ledger
	Orders() OrderStore
	Trades() TradeStore
	Instruments() InstrumentStore
}

// Store is the transactional substrate. The non-transactional accessors
// auto-commit per call and serve read paths and the HTTP shell; every
// mutating decision of the engine runs inside RunInTx.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ledger() Ledger
	Orders() OrderStore
	Trades() TradeStore
	Instruments() InstrumentStore
	Users() UserStore
}
