package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/EggysOnCode/stackex/core/engine"
)

// User model for PostgreSQL
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID        uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Name      string    `bun:"name,notnull" json:"name"`
	Role      string    `bun:"role,notnull" json:"role"` // engine.Role as string
	APIKey    string    `bun:"api_key,notnull,unique" json:"apiKey"`
	Active    bool      `bun:"active,notnull,default:true" json:"active"`
	CreatedAt time.Time `bun:"created_at,notnull,default:now()" json:"createdAt"`
}

// Instrument model for PostgreSQL
type Instrument struct {
	bun.BaseModel `bun:"table:instruments,alias:i"`

	Ticker    string    `bun:"ticker,pk" json:"ticker"`
	Name      string    `bun:"name,notnull" json:"name"`
	Active    bool      `bun:"active,notnull,default:true" json:"active"`
	CreatedAt time.Time `bun:"created_at,notnull,default:now()" json:"createdAt"`
}

// Balance model for PostgreSQL. One ledger row per (user, ticker),
// mutated only under FOR UPDATE.
type Balance struct {
	bun.BaseModel `bun:"table:balances,alias:b"`

	UserID   uuid.UUID `bun:"user_id,pk,type:uuid" json:"userID"`
	Ticker   string    `bun:"ticker,pk" json:"ticker"`
	Total    int64     `bun:"total,notnull,default:0" json:"total"`
	Reserved int64     `bun:"reserved,notnull,default:0" json:"reserved"`
}

// Order model for PostgreSQL. Price is NULL for market orders.
type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID        uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	UserID    uuid.UUID `bun:"user_id,notnull,type:uuid" json:"userID"`
	Ticker    string    `bun:"ticker,notnull" json:"ticker"`
	Direction string    `bun:"direction,notnull" json:"direction"`  // engine.Direction as string
	OrderType string    `bun:"order_type,notnull" json:"orderType"` // engine.OrderType as string
	Price     int64     `bun:"price,nullzero" json:"price,omitempty"`
	Quantity  int64     `bun:"quantity,notnull" json:"qty"`
	Filled    int64     `bun:"filled,notnull,default:0" json:"filled"`
	Status    string    `bun:"status,notnull" json:"status"` // engine.OrderStatus as string
	CreatedAt time.Time `bun:"created_at,notnull,default:now()" json:"createdAt"`
}

// Trade model for PostgreSQL. Append-only; seq is assigned by the
// database and totally orders the tape.
type Trade struct {
	bun.BaseModel `bun:"table:trades,alias:t"`

	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Seq           int64     `bun:"seq,autoincrement,nullzero" json:"seq"`
	Ticker        string    `bun:"ticker,notnull" json:"ticker"`
	BuyerOrderID  uuid.UUID `bun:"buyer_order_id,notnull,type:uuid" json:"buyerOrderID"`
	SellerOrderID uuid.UUID `bun:"seller_order_id,notnull,type:uuid" json:"sellerOrderID"`
	Price         int64     `bun:"price,notnull" json:"price"`
	Quantity      int64     `bun:"quantity,notnull" json:"qty"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:now()" json:"createdAt"`
}

// Conversion functions between engine types and Bun models

func NewUserModel(u *engine.User) *User {
	return &User{
		ID:        u.ID,
		Name:      u.Name,
		Role:      string(u.Role),
		APIKey:    u.APIKey,
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
	}
}

func (u *User) ToEngine() *engine.User {
	return &engine.User{
		ID:        u.ID,
		Name:      u.Name,
		Role:      engine.Role(u.Role),
		APIKey:    u.APIKey,
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
	}
}

func NewInstrumentModel(in *engine.Instrument) *Instrument {
	return &Instrument{
		Ticker:    in.Ticker,
		Name:      in.Name,
		Active:    in.Active,
		CreatedAt: in.CreatedAt,
	}
}

func (i *Instrument) ToEngine() *engine.Instrument {
	return &engine.Instrument{
		Ticker:    i.Ticker,
		Name:      i.Name,
		Active:    i.Active,
		CreatedAt: i.CreatedAt,
	}
}

func (b *Balance) ToEngine() engine.Balance {
	return engine.Balance{
		UserID:   b.UserID,
		Ticker:   b.Ticker,
		Total:    b.Total,
		Reserved: b.Reserved,
	}
}

func NewOrderModel(o *engine.Order) *Order {
	return &Order{
		ID:        o.ID,
		UserID:    o.UserID,
		Ticker:    o.Ticker,
		Direction: string(o.Direction),
		OrderType: string(o.Type),
		Price:     o.Price,
		Quantity:  o.Quantity,
		Filled:    o.Filled,
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt,
	}
}

func (o *Order) ToEngine() *engine.Order {
	return &engine.Order{
		ID:        o.ID,
		UserID:    o.UserID,
		Ticker:    o.Ticker,
		Direction: engine.Direction(o.Direction),
		Type:      engine.OrderType(o.OrderType),
		Price:     o.Price,
		Quantity:  o.Quantity,
		Filled:    o.Filled,
		Status:    engine.OrderStatus(o.Status),
		CreatedAt: o.CreatedAt,
	}
}

func NewTradeModel(t *engine.Trade) *Trade {
	return &Trade{
		ID:            t.ID,
		Seq:           t.Seq,
		Ticker:        t.Ticker,
		BuyerOrderID:  t.BuyerOrderID,
		SellerOrderID: t.SellerOrderID,
		Price:         t.Price,
		Quantity:      t.Quantity,
		CreatedAt:     t.CreatedAt,
	}
}

func (t *Trade) ToEngine() engine.Trade {
	return engine.Trade{
		ID:            t.ID,
		Seq:           t.Seq,
		Ticker:        t.Ticker,
		BuyerOrderID:  t.BuyerOrderID,
		SellerOrderID: t.SellerOrderID,
		Price:         t.Price,
		Quantity:      t.Quantity,
		CreatedAt:     t.CreatedAt,
	}
}
