package storage

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/EggysOnCode/stackex/config"
)

// CreateRmqpConnection dials the broker. TLS is unnecessary since all
// the comms stay inside the deployment.
func CreateRmqpConnection(cfg *config.RabbitMQConfig) (*amqp.Connection, error) {
	conn, err := amqp.Dial(fmt.Sprintf("amqp://%s:%s@%s/%s", cfg.Username, cfg.Password, cfg.Host, cfg.VHost))
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// RabbitMQProducer holds connection and configuration for a producer
type RabbitMQProducer struct {
	Connection *amqp.Connection
	Channel    *amqp.Channel
	Config     *config.RabbitMQConfig
}

// NewRabbitMQProducer creates a new producer with the given configuration
func NewRabbitMQProducer(conn *amqp.Connection, cfg *config.RabbitMQConfig) (*RabbitMQProducer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	// Enable publisher confirms on channel
	if err := ch.Confirm(false); err != nil {
		return nil, err
	}

	return &RabbitMQProducer{
		Connection: conn,
		Channel:    ch,
		Config:     cfg,
	}, nil
}

// SetupExchange ensures the exchange exists
func (p *RabbitMQProducer) SetupExchange() error {
	return p.Channel.ExchangeDeclare(
		p.Config.Exchange, // name
		"fanout",          // type
		true,              // durable
		false,             // auto-deleted
		false,             // internal
		false,             // no-wait
		nil,               // arguments
	)
}

// Close closes the producer channel
func (p *RabbitMQProducer) Close() error {
	return p.Channel.Close()
}

// Send publishes a message to the configured exchange.
func (p *RabbitMQProducer) Send(msg amqp.Publishing) error {
	confirmation, err := p.Channel.PublishWithDeferredConfirm(
		p.Config.Exchange,
		p.Config.RoutingKey,
		true,  // mandatory
		false, // immediate (deprecated, must be false)
		msg,
	)
	if err != nil {
		return err
	}
	// fire-and-forget semantics: wait quickly to flush, nothing else
	confirmation.Wait()
	return nil
}

// RabbitMQConsumer holds connection and configuration for a consumer
type RabbitMQConsumer struct {
	Connection *amqp.Connection
	Channel    *amqp.Channel
	Config     *config.RabbitMQConfig
}

// NewRabbitMQConsumer creates a new consumer with the given configuration
func NewRabbitMQConsumer(conn *amqp.Connection, cfg *config.RabbitMQConfig) (*RabbitMQConsumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	// Set QoS for consumer
	if err := ch.Qos(1, 0, false); err != nil {
		return nil, err
	}

	return &RabbitMQConsumer{
		Connection: conn,
		Channel:    ch,
		Config:     cfg,
	}, nil
}

// SetupQueue creates and binds the queue for this consumer
func (c *RabbitMQConsumer) SetupQueue() error {
	err := c.Channel.ExchangeDeclare(
		c.Config.Exchange, // name
		"fanout",          // type
		true,              // durable
		false,             // auto-deleted
		false,             // internal
		false,             // no-wait
		nil,               // arguments
	)
	if err != nil {
		return err
	}

	_, err = c.Channel.QueueDeclare(
		c.Config.QueueName, // name
		true,               // durable
		false,              // delete when unused
		false,              // exclusive
		false,              // no-wait
		nil,                // arguments
	)
	if err != nil {
		return err
	}

	// Bind queue to exchange (for fanout, the binding key is ignored)
	return c.Channel.QueueBind(
		c.Config.QueueName,
		c.Config.BindingKey,
		c.Config.Exchange,
		false,
		nil,
	)
}

// Close closes the consumer channel
func (c *RabbitMQConsumer) Close() error {
	return c.Channel.Close()
}

// Consume starts consuming messages from the queue
func (c *RabbitMQConsumer) Consume() (<-chan amqp.Delivery, error) {
	return c.Channel.Consume(
		c.Config.QueueName,
		c.Config.ConsumerTag,
		false, // manual ack; the mirror write must succeed first
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
}
