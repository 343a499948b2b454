package storage

import (
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/EggysOnCode/stackex/config"
	"github.com/EggysOnCode/stackex/events"
)

// MarketDataMirror consumes committed trade events from the broker and
// writes them into the KV mirror. Order lifecycle events are acked and
// dropped; only the tape is mirrored.
type MarketDataMirror struct {
	consumer *RabbitMQConsumer
	kvdb     *KvDB
	logger   *zap.Logger
}

// NewMarketDataMirror wires a consumer to the mirror and starts the
// consume loop in a goroutine.
func NewMarketDataMirror(conn *amqp.Connection, cfg *config.RabbitMQConfig, kvdb *KvDB, logger *zap.Logger) (*MarketDataMirror, error) {
	consumer, err := NewRabbitMQConsumer(conn, cfg)
	if err != nil {
		return nil, err
	}
	if err := consumer.SetupQueue(); err != nil {
		return nil, err
	}

	m := &MarketDataMirror{
		consumer: consumer,
		kvdb:     kvdb,
		logger:   logger,
	}

	msgs, err := consumer.Consume()
	if err != nil {
		return nil, err
	}
	go m.run(msgs)

	return m, nil
}

func (m *MarketDataMirror) run(msgs <-chan amqp.Delivery) {
	m.logger.Info("market-data mirror consuming")
	for msg := range msgs {
		m.handle(msg)
	}
	m.logger.Info("market-data mirror stopped")
}

func (m *MarketDataMirror) handle(msg amqp.Delivery) {
	env, err := events.FromBytes(msg.Body)
	if err != nil {
		m.logger.Warn("dropping undecodable event", zap.Error(err))
		m.ack(msg, false)
		return
	}

	if env.Type != events.TradeExecuted {
		m.ack(msg, true)
		return
	}

	trade, err := env.Trade()
	if err != nil {
		m.logger.Warn("dropping malformed trade event", zap.Error(err))
		m.ack(msg, false)
		return
	}

	if err := m.kvdb.PutTrade(trade); err != nil {
		m.logger.Error("failed to mirror trade",
			zap.String("trade", trade.ID.String()),
			zap.Error(err),
		)
		m.ack(msg, false)
		return
	}
	m.ack(msg, true)
}

func (m *MarketDataMirror) ack(msg amqp.Delivery, ok bool) {
	var err error
	if ok {
		err = msg.Ack(false)
	} else {
		err = msg.Nack(false, false)
	}
	if err != nil {
		m.logger.Error("failed to ack delivery", zap.Error(err))
	}
}

// Close stops the consumer channel; the run loop drains and exits.
func (m *MarketDataMirror) Close() error {
	return m.consumer.Close()
}
