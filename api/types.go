package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/EggysOnCode/stackex/core/engine"
)

// CreateOrderRequest admits both order kinds: a present price makes it
// a limit order, an absent one a market order.
type CreateOrderRequest struct {
	Ticker    string `json:"ticker"`
	Direction string `json:"direction"`
	Qty       int64  `json:"qty"`
	Price     *int64 `json:"price,omitempty"`
}

// OrderBody echoes the submitted parameters back in responses.
type OrderBody struct {
	Direction string `json:"direction"`
	Ticker    string `json:"ticker"`
	Qty       int64  `json:"qty"`
	Price     int64  `json:"price,omitempty"`
}

// OrderResponse is the API view of one order.
type OrderResponse struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Body      OrderBody `json:"body"`
	Filled    int64     `json:"filled"`
}

// NewOrderResponse converts an engine order.
func NewOrderResponse(o *engine.Order) OrderResponse {
	return OrderResponse{
		ID:        o.ID,
		UserID:    o.UserID,
		Status:    string(o.Status),
		Timestamp: o.CreatedAt,
		Body: OrderBody{
			Direction: string(o.Direction),
			Ticker:    o.Ticker,
			Qty:       o.Quantity,
			Price:     o.Price,
		},
		Filled: o.Filled,
	}
}

// CreateOrderResponse acknowledges an admitted order.
type CreateOrderResponse struct {
	Success bool      `json:"success"`
	OrderID uuid.UUID `json:"order_id"`
}

// TradeResponse is the API view of one tape entry.
type TradeResponse struct {
	ID            uuid.UUID `json:"id"`
	Ticker        string    `json:"ticker"`
	BuyerOrderID  uuid.UUID `json:"buyer_order_id"`
	SellerOrderID uuid.UUID `json:"seller_order_id"`
	Price         int64     `json:"price"`
	Qty           int64     `json:"qty"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewTradeResponse converts an engine trade.
func NewTradeResponse(t engine.Trade) TradeResponse {
	return TradeResponse{
		ID:            t.ID,
		Ticker:        t.Ticker,
		BuyerOrderID:  t.BuyerOrderID,
		SellerOrderID: t.SellerOrderID,
		Price:         t.Price,
		Qty:           t.Quantity,
		Timestamp:     t.CreatedAt,
	}
}

// BalanceEntry is one ledger row in a balances listing.
type BalanceEntry struct {
	Total     int64 `json:"total"`
	Reserved  int64 `json:"reserved"`
	Available int64 `json:"available"`
}

// RegisterRequest creates a new user.
type RegisterRequest struct {
	Name string `json:"name"`
}

// UserResponse is the API view of one user; the api key is only
// returned at registration time.
type UserResponse struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Role   string    `json:"role"`
	APIKey string    `json:"api_key,omitempty"`
}

// InstrumentRequest lists an instrument.
type InstrumentRequest struct {
	Ticker string `json:"ticker"`
	Name   string `json:"name"`
}

// InstrumentResponse is the API view of one instrument.
type InstrumentResponse struct {
	Ticker string `json:"ticker"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// TransferRequest deposits to or withdraws from a user's balance.
type TransferRequest struct {
	UserID uuid.UUID `json:"user_id"`
	Ticker string    `json:"ticker"`
	Amount int64     `json:"amount"`
}

// OkResponse is the generic success acknowledgement.
type OkResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse carries the error kind and a human-readable detail.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Detail  string `json:"detail,omitempty"`
}

// NewErrorResponse builds an error payload
func NewErrorResponse(errName, detail string) ErrorResponse {
	return ErrorResponse{Success: false, Error: errName, Detail: detail}
}

// StatusForError maps engine errors onto HTTP statuses.
func StatusForError(err error) (int, string) {
	switch {
	case errors.Is(err, engine.ErrBadRequest):
		return http.StatusBadRequest, "BAD_REQUEST"
	case errors.Is(err, engine.ErrUnknownInstrument):
		return http.StatusNotFound, "UNKNOWN_INSTRUMENT"
	case errors.Is(err, engine.ErrInsufficientFunds):
		return http.StatusBadRequest, "INSUFFICIENT_FUNDS"
	case errors.Is(err, engine.ErrNoLiquidity):
		return http.StatusBadRequest, "NO_LIQUIDITY"
	case errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, engine.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, engine.ErrConflict):
		return http.StatusConflict, "CONFLICT"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}
