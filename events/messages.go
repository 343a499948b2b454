// Package events defines the wire messages published after a commit:
// order lifecycle changes and executed trades. Downstream consumers
// (the market-data mirror, external feeds) decode the envelope and
// switch on its type.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/EggysOnCode/stackex/core/engine"
)

type MessageType string

const (
	OrderAccepted  MessageType = "ORDER_ACCEPTED"
	OrderCancelled MessageType = "ORDER_CANCELLED"
	TradeExecuted  MessageType = "TRADE_EXECUTED"
)

// Envelope wraps every published message.
type Envelope struct {
	Type        MessageType     `json:"type"`
	PublishedAt time.Time       `json:"publishedAt"`
	Data        json.RawMessage `json:"data"`
}

// NewOrderAccepted builds the admission message for an order.
func NewOrderAccepted(o *engine.Order) (*Envelope, error) {
	return wrap(OrderAccepted, o)
}

// NewOrderCancelled builds the cancellation message for an order.
func NewOrderCancelled(o *engine.Order) (*Envelope, error) {
	return wrap(OrderCancelled, o)
}

// NewTradeExecuted builds the tape message for one executed trade.
func NewTradeExecuted(t *engine.Trade) (*Envelope, error) {
	return wrap(TradeExecuted, t)
}

func wrap(mt MessageType, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{Type: mt, PublishedAt: time.Now().UTC(), Data: data}, nil
}

// Bytes encodes the envelope for publishing.
func (e *Envelope) Bytes() ([]byte, error) {
	return json.Marshal(e)
}

// FromBytes decodes an envelope received from the broker.
func FromBytes(body []byte) (*Envelope, error) {
	e := new(Envelope)
	if err := json.Unmarshal(body, e); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}
	if e.Type == "" {
		return nil, fmt.Errorf("event envelope without type")
	}
	return e, nil
}

// Trade decodes the payload of a TRADE_EXECUTED envelope.
func (e *Envelope) Trade() (*engine.Trade, error) {
	if e.Type != TradeExecuted {
		return nil, fmt.Errorf("envelope is %s, not %s", e.Type, TradeExecuted)
	}
	t := new(engine.Trade)
	if err := json.Unmarshal(e.Data, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Order decodes the payload of an order lifecycle envelope.
func (e *Envelope) Order() (*engine.Order, error) {
	if e.Type != OrderAccepted && e.Type != OrderCancelled {
		return nil, fmt.Errorf("envelope is %s, not an order event", e.Type)
	}
	o := new(engine.Order)
	if err := json.Unmarshal(e.Data, o); err != nil {
		return nil, err
	}
	return o, nil
}
