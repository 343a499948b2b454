package engine

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts engine activity. Constructed once and injected; pass
// prometheus.NewRegistry() in tests to keep registrations isolated.
type Metrics struct {
	ordersSubmitted *prometheus.CounterVec
	ordersRejected  *prometheus.CounterVec
	ordersCancelled prometheus.Counter
	tradesExecuted  prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ordersSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stackex",
			Subsystem: "engine",
			Name:      "orders_submitted_total",
			Help:      "Orders admitted by the matching engine.",
		}, []string{"type", "direction"}),
		ordersRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stackex",
			Subsystem: "engine",
			Name:      "orders_rejected_total",
			Help:      "Order submissions rejected before or during matching.",
		}, []string{"reason"}),
		ordersCancelled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "stackex",
			Subsystem: "engine",
			Name:      "orders_cancelled_total",
			Help:      "Orders cancelled by their owner.",
		}),
		tradesExecuted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "stackex",
			Subsystem: "engine",
			Name:      "trades_executed_total",
			Help:      "Trades appended to the tape.",
		}),
	}
}

func (m *Metrics) submitted(t OrderType, d Direction) {
	if m == nil {
		return
	}
	m.ordersSubmitted.WithLabelValues(string(t), string(d)).Inc()
}

func (m *Metrics) rejected(err error) {
	if m == nil {
		return
	}
	m.ordersRejected.WithLabelValues(rejectReason(err)).Inc()
}

func (m *Metrics) cancelled() {
	if m == nil {
		return
	}
	m.ordersCancelled.Inc()
}

func (m *Metrics) traded(n int) {
	if m == nil {
		return
	}
	m.tradesExecuted.Add(float64(n))
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrBadRequest):
		return "bad_request"
	case errors.Is(err, ErrUnknownInstrument):
		return "unknown_instrument"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrNoLiquidity):
		return "no_liquidity"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "internal"
	}
}
