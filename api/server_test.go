package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/EggysOnCode/stackex/api/handlers"
	"github.com/EggysOnCode/stackex/core/engine"
	"github.com/EggysOnCode/stackex/storage/memstore"
)

const adminKey = "key-admin-test"

func newTestServer(t *testing.T) (*Server, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	log := zap.NewNop()
	registry := prometheus.NewRegistry()
	eng := engine.New(st, engine.NewMetrics(registry), log)

	require.NoError(t, st.Users().Create(context.Background(), &engine.User{
		ID:        uuid.New(),
		Name:      "admin",
		Role:      engine.RoleAdmin,
		APIKey:    adminKey,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}))

	return NewServer(&Config{
		Port:     "0",
		Engine:   eng,
		Store:    st,
		Producer: handlers.NopProducer{},
		Registry: registry,
		Logger:   log,
	}), st
}

func doJSON(t *testing.T, s *Server, method, path, apiKey string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	} else {
		reader = strings.NewReader("")
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "TOKEN "+apiKey)
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func register(t *testing.T, s *Server, name string) UserResponse {
	t.Helper()
	rec := doJSON(t, s, http.MethodPost, "/api/v1/public/register", "", RegisterRequest{Name: name})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var user UserResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	require.NotEmpty(t, user.APIKey)
	return user
}

func listInstrument(t *testing.T, s *Server, ticker string) {
	t.Helper()
	rec := doJSON(t, s, http.MethodPost, "/api/v1/admin/instrument", adminKey,
		InstrumentRequest{Ticker: ticker, Name: ticker + " Corp"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func fund(t *testing.T, s *Server, user uuid.UUID, ticker string, amount int64) {
	t.Helper()
	rec := doJSON(t, s, http.MethodPost, "/api/v1/admin/balance/deposit", adminKey,
		TransferRequest{UserID: user, Ticker: ticker, Amount: amount})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

// Test_HTTP_TradingFlow runs registration, funding, a cross and the
// public read surfaces over the wire.
func Test_HTTP_TradingFlow(t *testing.T) {
	s, _ := newTestServer(t)

	alice := register(t, s, "alice")
	bob := register(t, s, "bob")
	listInstrument(t, s, "MEM")
	fund(t, s, alice.ID, engine.CashTicker, 1000)
	fund(t, s, bob.ID, "MEM", 10)

	// Bob rests an ask.
	price := int64(100)
	rec := doJSON(t, s, http.MethodPost, "/api/v1/order", bob.APIKey,
		CreateOrderRequest{Ticker: "MEM", Direction: "SELL", Qty: 5, Price: &price})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// The book shows the ask.
	rec = doJSON(t, s, http.MethodGet, "/api/v1/public/orderbook/MEM", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var book engine.L2Book
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &book))
	require.Len(t, book.Asks, 1)
	assert.Equal(t, engine.Level{Price: 100, Qty: 5}, book.Asks[0])

	// Alice lifts it with a market buy.
	rec = doJSON(t, s, http.MethodPost, "/api/v1/order", alice.APIKey,
		CreateOrderRequest{Ticker: "MEM", Direction: "BUY", Qty: 5})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created CreateOrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	// The tape prints one trade at the maker price.
	rec = doJSON(t, s, http.MethodGet, "/api/v1/public/transactions/MEM", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tape []TradeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tape))
	require.Len(t, tape, 1)
	assert.Equal(t, int64(100), tape[0].Price)
	assert.Equal(t, int64(5), tape[0].Qty)

	// Balances settled both ways.
	rec = doJSON(t, s, http.MethodGet, "/api/v1/balance", alice.APIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var balances map[string]BalanceEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &balances))
	assert.Equal(t, BalanceEntry{Total: 500, Reserved: 0, Available: 500}, balances[engine.CashTicker])
	assert.Equal(t, BalanceEntry{Total: 5, Reserved: 0, Available: 5}, balances["MEM"])

	// The order is visible and terminal.
	rec = doJSON(t, s, http.MethodGet, fmt.Sprintf("/api/v1/order/%s", created.OrderID), alice.APIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var order OrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	assert.Equal(t, string(engine.StatusExecuted), order.Status)
	assert.Equal(t, int64(5), order.Filled)
}

// Test_HTTP_AuthAndRoles covers the 401/403 surfaces.
func Test_HTTP_AuthAndRoles(t *testing.T) {
	s, _ := newTestServer(t)
	alice := register(t, s, "alice")

	rec := doJSON(t, s, http.MethodGet, "/api/v1/balance", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/balance", "key-unknown", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/admin/instrument", alice.APIKey,
		InstrumentRequest{Ticker: "MEM", Name: "Mem Corp"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Deactivated users lose access once the cache entry is gone; a
	// fresh key is resolved against the store directly.
	bob := register(t, s, "bob")
	rec = doJSON(t, s, http.MethodDelete, "/api/v1/admin/user/"+bob.ID.String(), adminKey, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, s, http.MethodGet, "/api/v1/balance", bob.APIKey, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// Test_HTTP_ErrorMapping checks the engine-error to status mapping.
func Test_HTTP_ErrorMapping(t *testing.T) {
	s, _ := newTestServer(t)
	alice := register(t, s, "alice")
	listInstrument(t, s, "MEM")

	price := int64(100)

	// Unknown instrument.
	rec := doJSON(t, s, http.MethodPost, "/api/v1/order", alice.APIKey,
		CreateOrderRequest{Ticker: "GONE", Direction: "BUY", Qty: 1, Price: &price})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Insufficient funds.
	rec = doJSON(t, s, http.MethodPost, "/api/v1/order", alice.APIKey,
		CreateOrderRequest{Ticker: "MEM", Direction: "BUY", Qty: 1, Price: &price})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "INSUFFICIENT_FUNDS", errResp.Error)

	// Market order into an empty book.
	fund(t, s, alice.ID, engine.CashTicker, 1000)
	rec = doJSON(t, s, http.MethodPost, "/api/v1/order", alice.APIKey,
		CreateOrderRequest{Ticker: "MEM", Direction: "BUY", Qty: 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "NO_LIQUIDITY", errResp.Error)

	// Cancelling an unknown order.
	rec = doJSON(t, s, http.MethodDelete, "/api/v1/order/"+uuid.NewString(), alice.APIKey, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Malformed order id.
	rec = doJSON(t, s, http.MethodGet, "/api/v1/order/not-a-uuid", alice.APIKey, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Book depth out of range.
	rec = doJSON(t, s, http.MethodGet, "/api/v1/public/orderbook/MEM?limit=26", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Withdrawing reserved funds.
	rec = doJSON(t, s, http.MethodPost, "/api/v1/order", alice.APIKey,
		CreateOrderRequest{Ticker: "MEM", Direction: "BUY", Qty: 10, Price: &price})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = doJSON(t, s, http.MethodPost, "/api/v1/admin/balance/withdraw", adminKey,
		TransferRequest{UserID: alice.ID, Ticker: engine.CashTicker, Amount: 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
