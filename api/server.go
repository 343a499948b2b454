package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/EggysOnCode/stackex/api/handlers"
	"github.com/EggysOnCode/stackex/api/middleware"
	"github.com/EggysOnCode/stackex/core/engine"
)

const (
	defaultBookDepth = 10
	defaultTapeLimit = 10
)

// Server is the HTTP surface over the matching engine.
type Server struct {
	echo    *echo.Echo
	port    string
	orders  *handlers.OrderHandler
	public  *handlers.PublicHandler
	balance *handlers.BalanceHandler
	admin   *handlers.AdminHandler
	logger  *zap.Logger
}

// Config holds server configuration
type Config struct {
	Port     string
	Engine   *engine.Engine
	Store    engine.Store
	Producer handlers.MessageProducer
	Registry *prometheus.Registry
	Logger   *zap.Logger
}

// NewServer wires middleware, handlers and routes.
func NewServer(cfg *Config) *Server {
	e := echo.New()
	e.HideBanner = true

	s := &Server{
		echo:    e,
		port:    cfg.Port,
		orders:  handlers.NewOrderHandler(cfg.Engine, cfg.Producer, cfg.Logger),
		public:  handlers.NewPublicHandler(cfg.Engine, cfg.Store, cfg.Logger),
		balance: handlers.NewBalanceHandler(cfg.Engine, cfg.Logger),
		admin:   handlers.NewAdminHandler(cfg.Engine, cfg.Store, cfg.Logger),
		logger:  cfg.Logger,
	}

	auth := middleware.NewAuthenticator(cfg.Store.Users(), cfg.Logger)

	e.Use(middleware.LoggingMiddleware())
	e.Use(middleware.RequestIDMiddleware())
	e.Use(middleware.ValidationMiddleware())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})
	if cfg.Registry != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{})))
	}

	v1 := e.Group("/api/v1")

	public := v1.Group("/public")
	public.POST("/register", s.handleRegister)
	public.GET("/instrument", s.handleListInstruments)
	public.GET("/orderbook/:ticker", s.handleOrderbook)
	public.GET("/transactions/:ticker", s.handleTape)

	orders := v1.Group("/order", auth.Middleware())
	orders.POST("", s.handleCreateOrder)
	orders.GET("", s.handleListOrders)
	orders.GET("/:id", s.handleGetOrder)
	orders.DELETE("/:id", s.handleCancelOrder)

	v1.GET("/balance", s.handleBalances, auth.Middleware())

	admin := v1.Group("/admin", auth.Middleware(), middleware.RequireAdmin())
	admin.POST("/instrument", s.handleAddInstrument)
	admin.DELETE("/instrument/:ticker", s.handleDelistInstrument)
	admin.DELETE("/user/:user_id", s.handleDeactivateUser)
	admin.POST("/balance/deposit", s.handleDeposit)
	admin.POST("/balance/withdraw", s.handleWithdraw)

	return s
}

// Start blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	return s.echo.Start(":" + s.port)
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Echo exposes the router, used by the HTTP tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// ── public ───────────────────────────────────────────

func (s *Server) handleRegister(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, engine.ErrBadRequest, "failed to parse request body")
	}

	user, err := s.public.Register(c.Request().Context(), req.Name)
	if err != nil {
		return errorJSON(c, err, "registration failed")
	}
	return c.JSON(http.StatusCreated, UserResponse{
		ID:     user.ID,
		Name:   user.Name,
		Role:   string(user.Role),
		APIKey: user.APIKey,
	})
}

func (s *Server) handleListInstruments(c echo.Context) error {
	instruments, err := s.public.Instruments(c.Request().Context())
	if err != nil {
		return errorJSON(c, err, "failed to list instruments")
	}
	out := make([]InstrumentResponse, len(instruments))
	for i, in := range instruments {
		out[i] = InstrumentResponse{Ticker: in.Ticker, Name: in.Name, Active: in.Active}
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleOrderbook(c echo.Context) error {
	depth, err := queryInt(c, "limit", defaultBookDepth)
	if err != nil {
		return errorJSON(c, engine.ErrBadRequest, "limit must be an integer")
	}
	book, err := s.public.Book(c.Request().Context(), c.Param("ticker"), depth)
	if err != nil {
		return errorJSON(c, err, "failed to build orderbook")
	}
	return c.JSON(http.StatusOK, book)
}

func (s *Server) handleTape(c echo.Context) error {
	limit, err := queryInt(c, "limit", defaultTapeLimit)
	if err != nil {
		return errorJSON(c, engine.ErrBadRequest, "limit must be an integer")
	}
	trades, err := s.public.Tape(c.Request().Context(), c.Param("ticker"), limit)
	if err != nil {
		return errorJSON(c, err, "failed to read trade tape")
	}
	out := make([]TradeResponse, len(trades))
	for i, t := range trades {
		out[i] = NewTradeResponse(t)
	}
	return c.JSON(http.StatusOK, out)
}

// ── orders ───────────────────────────────────────────

func (s *Server) handleCreateOrder(c echo.Context) error {
	user := middleware.CurrentUser(c)

	var req CreateOrderRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, engine.ErrBadRequest, "failed to parse request body")
	}

	ctx := c.Request().Context()
	dir := engine.Direction(req.Direction)

	var order *engine.Order
	var err error
	if req.Price != nil {
		order, err = s.orders.CreateLimit(ctx, user.ID, req.Ticker, dir, req.Qty, *req.Price)
	} else {
		order, err = s.orders.CreateMarket(ctx, user.ID, req.Ticker, dir, req.Qty)
	}
	if err != nil {
		return errorJSON(c, err, "order rejected")
	}
	return c.JSON(http.StatusCreated, CreateOrderResponse{Success: true, OrderID: order.ID})
}

func (s *Server) handleListOrders(c echo.Context) error {
	user := middleware.CurrentUser(c)
	orders, err := s.orders.ListForUser(c.Request().Context(), user.ID)
	if err != nil {
		return errorJSON(c, err, "failed to list orders")
	}
	out := make([]OrderResponse, len(orders))
	for i := range orders {
		out[i] = NewOrderResponse(&orders[i])
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetOrder(c echo.Context) error {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return errorJSON(c, engine.ErrBadRequest, "order id must be a uuid")
	}
	order, err := s.orders.Get(c.Request().Context(), orderID)
	if err != nil {
		return errorJSON(c, err, "failed to fetch order")
	}
	return c.JSON(http.StatusOK, NewOrderResponse(order))
}

func (s *Server) handleCancelOrder(c echo.Context) error {
	user := middleware.CurrentUser(c)
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return errorJSON(c, engine.ErrBadRequest, "order id must be a uuid")
	}
	if err := s.orders.Cancel(c.Request().Context(), user.ID, orderID); err != nil {
		return errorJSON(c, err, "cancellation rejected")
	}
	return c.JSON(http.StatusOK, OkResponse{Success: true})
}

// ── balances ─────────────────────────────────────────

func (s *Server) handleBalances(c echo.Context) error {
	user := middleware.CurrentUser(c)
	balances, err := s.balance.Balances(c.Request().Context(), user.ID)
	if err != nil {
		return errorJSON(c, err, "failed to list balances")
	}
	out := make(map[string]BalanceEntry, len(balances))
	for _, b := range balances {
		out[b.Ticker] = BalanceEntry{
			Total:     b.Total,
			Reserved:  b.Reserved,
			Available: b.Available(),
		}
	}
	return c.JSON(http.StatusOK, out)
}

// ── admin ────────────────────────────────────────────

func (s *Server) handleAddInstrument(c echo.Context) error {
	var req InstrumentRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, engine.ErrBadRequest, "failed to parse request body")
	}
	if err := s.admin.AddInstrument(c.Request().Context(), req.Ticker, req.Name); err != nil {
		return errorJSON(c, err, "failed to list instrument")
	}
	return c.JSON(http.StatusOK, OkResponse{Success: true})
}

func (s *Server) handleDelistInstrument(c echo.Context) error {
	if err := s.admin.DelistInstrument(c.Request().Context(), c.Param("ticker")); err != nil {
		return errorJSON(c, err, "failed to delist instrument")
	}
	return c.JSON(http.StatusOK, OkResponse{Success: true})
}

func (s *Server) handleDeactivateUser(c echo.Context) error {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		return errorJSON(c, engine.ErrBadRequest, "user id must be a uuid")
	}
	if err := s.admin.DeactivateUser(c.Request().Context(), userID); err != nil {
		return errorJSON(c, err, "failed to deactivate user")
	}
	return c.JSON(http.StatusOK, OkResponse{Success: true})
}

func (s *Server) handleDeposit(c echo.Context) error {
	var req TransferRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, engine.ErrBadRequest, "failed to parse request body")
	}
	if err := s.admin.Deposit(c.Request().Context(), req.UserID, req.Ticker, req.Amount); err != nil {
		return errorJSON(c, err, "deposit rejected")
	}
	return c.JSON(http.StatusOK, OkResponse{Success: true})
}

func (s *Server) handleWithdraw(c echo.Context) error {
	var req TransferRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, engine.ErrBadRequest, "failed to parse request body")
	}
	if err := s.admin.Withdraw(c.Request().Context(), req.UserID, req.Ticker, req.Amount); err != nil {
		return errorJSON(c, err, "withdrawal rejected")
	}
	return c.JSON(http.StatusOK, OkResponse{Success: true})
}

func errorJSON(c echo.Context, err error, detail string) error {
	status, kind := StatusForError(err)
	return c.JSON(status, NewErrorResponse(kind, detail+": "+err.Error()))
}

func queryInt(c echo.Context, name string, fallback int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
