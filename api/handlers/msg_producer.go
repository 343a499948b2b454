package handlers

import (
	"github.com/EggysOnCode/stackex/core/engine"
)

// MessageProducer publishes committed engine activity to downstream
// consumers. Publishing happens strictly after commit; a publish
// failure is logged and dropped, never rolled into the trading path.
type MessageProducer interface {
	PublishOrderAccepted(order *engine.Order) error
	PublishOrderCancelled(order *engine.Order) error
	PublishTradeExecuted(trade *engine.Trade) error
}

// NopProducer drops every message. Used when the broker is not
// configured and in tests.
type NopProducer struct{}

func (NopProducer) PublishOrderAccepted(*engine.Order) error  { return nil }
func (NopProducer) PublishOrderCancelled(*engine.Order) error { return nil }
func (NopProducer) PublishTradeExecuted(*engine.Trade) error  { return nil }
