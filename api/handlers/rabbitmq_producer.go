package handlers

import (
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/EggysOnCode/stackex/config"
	"github.com/EggysOnCode/stackex/core/engine"
	"github.com/EggysOnCode/stackex/events"
	"github.com/EggysOnCode/stackex/storage"
)

// RabbitMQMessageProducer implements MessageProducer using RabbitMQ
type RabbitMQMessageProducer struct {
	prod   *storage.RabbitMQProducer
	logger *zap.Logger
}

// NewRabbitMQMessageProducer creates a new producer instance
func NewRabbitMQMessageProducer(conn *amqp.Connection, cfg *config.RabbitMQConfig, logger *zap.Logger) (*RabbitMQMessageProducer, error) {
	prod, err := storage.NewRabbitMQProducer(conn, cfg)
	if err != nil {
		return nil, err
	}
	if err := prod.SetupExchange(); err != nil {
		return nil, err
	}
	logger.Info("RabbitMQ message producer initialized")
	return &RabbitMQMessageProducer{
		prod:   prod,
		logger: logger,
	}, nil
}

func (p *RabbitMQMessageProducer) PublishOrderAccepted(order *engine.Order) error {
	msg, err := events.NewOrderAccepted(order)
	if err != nil {
		return err
	}
	return p.publish(msg)
}

func (p *RabbitMQMessageProducer) PublishOrderCancelled(order *engine.Order) error {
	msg, err := events.NewOrderCancelled(order)
	if err != nil {
		return err
	}
	return p.publish(msg)
}

func (p *RabbitMQMessageProducer) PublishTradeExecuted(trade *engine.Trade) error {
	msg, err := events.NewTradeExecuted(trade)
	if err != nil {
		return err
	}
	return p.publish(msg)
}

func (p *RabbitMQMessageProducer) publish(env *events.Envelope) error {
	body, err := env.Bytes()
	if err != nil {
		return err
	}
	return p.prod.Send(amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

// Close closes the producer channel.
func (p *RabbitMQMessageProducer) Close() error {
	return p.prod.Close()
}
