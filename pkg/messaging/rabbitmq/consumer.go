package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/jwalitptl/notification-service/internal/model"
	"github.com/jwalitptl/notification-service/pkg/logger"
	"github.com/jwalitptl/notification-service/pkg/messaging"
	"github.com/jwalitptl/notification-service/pkg/metrics"
)

var (
	ErrConnection         = errors.New("rabbitmq connection failed")
	ErrReconnectExhausted = errors.New("rabbitmq reconnect attempts exhausted")

	errStreamClosed = errors.New("delivery stream closed")
)

// Connection is the subset of *amqp.Connection the consumer uses.
type Connection interface {
	Channel() (Channel, error)
	Close() error
}

// Channel is the subset of *amqp.Channel the consumer uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

type Dialer func(url string, cfg amqp.Config) (Connection, error)

type amqpConnection struct {
	*amqp.Connection
}

func (c amqpConnection) Channel() (Channel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func dialAMQP(url string, cfg amqp.Config) (Connection, error) {
	conn, err := amqp.DialConfig(url, cfg)
	if err != nil {
		return nil, err
	}
	return amqpConnection{conn}, nil
}

type Option func(*Consumer)

// WithDialer replaces the network dialer.
func WithDialer(d Dialer) Option {
	return func(c *Consumer) { c.dial = d }
}

// Consumer pulls events off the work queue one at a time and hands them to
// a messaging.Handler. Messages are acked on success and nacked without
// requeue on any failure.
type Consumer struct {
	cfg     Config
	handler messaging.Handler
	logger  *logger.Logger
	metrics *metrics.Metrics
	dial    Dialer

	mu   sync.Mutex
	conn Connection
	ch   Channel
}

var _ messaging.Consumer = (*Consumer)(nil)

func NewConsumer(cfg Config, handler messaging.Handler, log *logger.Logger, m *metrics.Metrics, opts ...Option) *Consumer {
	if m == nil {
		m = metrics.NewNop()
	}
	c := &Consumer{
		cfg:     cfg.withDefaults(),
		handler: handler,
		logger:  log.WithFields(map[string]interface{}{"component": "rabbitmq-consumer"}),
		metrics: m,
		dial:    dialAMQP,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run consumes until ctx is cancelled, reconnecting with exponential
// backoff when the connection fails or the delivery stream ends. It returns
// nil on cancellation and ErrReconnectExhausted once MaxReconnectAttempts
// consecutive attempts have failed.
func (c *Consumer) Run(ctx context.Context) error {
	attempts := 0
	delay := c.cfg.ReconnectDelay

	for {
		if ctx.Err() != nil {
			return nil
		}

		deliveries, err := c.connect(ctx)
		if err == nil {
			c.metrics.Reconnects.WithLabelValues("success").Inc()
			c.logger.Info("Connected to RabbitMQ",
				"queue", c.cfg.Queue,
				"bindings", len(c.cfg.Bindings))
			attempts = 0
			delay = c.cfg.ReconnectDelay

			err = c.consume(ctx, deliveries)
			c.Close()
			if ctx.Err() != nil {
				return nil
			}
		} else {
			c.metrics.Reconnects.WithLabelValues("failure").Inc()
		}

		attempts++
		if attempts >= c.cfg.MaxReconnectAttempts {
			c.logger.Error(err, "Max reconnection attempts reached", "attempts", attempts)
			return fmt.Errorf("%w after %d attempts: %v", ErrReconnectExhausted, attempts, err)
		}

		c.logger.Warn("RabbitMQ connection lost, reconnecting",
			"error", err.Error(),
			"attempt", attempts,
			"max_attempts", c.cfg.MaxReconnectAttempts,
			"delay", delay.String())

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		delay *= 2
	}
}

func (c *Consumer) connect(ctx context.Context) (<-chan amqp.Delivery, error) {
	props := amqp.NewConnectionProperties()
	props.SetClientConnectionName("notification-service")

	conn, err := c.dial(c.cfg.Address(), amqp.Config{
		Heartbeat:  c.cfg.Heartbeat,
		Locale:     "en_US",
		Properties: props,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: dial: %v", ErrConnection, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: open channel: %v", ErrConnection, err)
	}

	c.mu.Lock()
	c.conn, c.ch = conn, ch
	c.mu.Unlock()

	deliveries, err := c.setup(ch)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return deliveries, nil
}

func (c *Consumer) setup(ch Channel) (<-chan amqp.Delivery, error) {
	for _, b := range c.cfg.Bindings {
		if err := ch.ExchangeDeclare(b.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
			return nil, fmt.Errorf("declare exchange %s: %w", b.Exchange, err)
		}
	}

	if _, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", c.cfg.Queue, err)
	}

	for _, b := range c.cfg.Bindings {
		for _, key := range b.RoutingKeys {
			if err := ch.QueueBind(c.cfg.Queue, key, b.Exchange, false, nil); err != nil {
				return nil, fmt.Errorf("bind %s to %s/%s: %w", c.cfg.Queue, b.Exchange, key, err)
			}
		}
	}

	// one unacked message at a time
	if err := ch.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(c.cfg.Queue, c.cfg.ConsumerTag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", c.cfg.Queue, err)
	}
	return deliveries, nil
}

func (c *Consumer) consume(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errStreamClosed
			}
			c.process(ctx, d)
		}
	}
}

func (c *Consumer) process(ctx context.Context, d amqp.Delivery) {
	evt, err := messaging.DecodeEvent(d.Body)
	if err != nil {
		c.metrics.MessagesRejected.WithLabelValues("decode").Inc()
		c.logger.Error(err, "Failed to decode message",
			"routing_key", d.RoutingKey,
			"delivery_tag", d.DeliveryTag)
		c.reject(d)
		return
	}

	if err := c.handle(ctx, evt); err != nil {
		c.metrics.MessagesRejected.WithLabelValues("handler").Inc()
		c.metrics.EventsConsumed.WithLabelValues(string(evt.Type), "rejected").Inc()
		c.logger.Error(err, "Failed to process event",
			"event_type", string(evt.Type),
			"routing_key", d.RoutingKey)
		c.reject(d)
		return
	}

	if err := d.Ack(false); err != nil {
		c.logger.Error(err, "Failed to ack message", "delivery_tag", d.DeliveryTag)
		return
	}
	c.metrics.EventsConsumed.WithLabelValues(string(evt.Type), "acked").Inc()
	c.logger.Debug("Message processed", "event_type", string(evt.Type))
}

// handle isolates a panicking handler to the message that caused it.
func (c *Consumer) handle(ctx context.Context, evt model.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return c.handler.Handle(ctx, evt)
}

func (c *Consumer) reject(d amqp.Delivery) {
	if err := d.Nack(false, false); err != nil {
		c.logger.Error(err, "Failed to nack message", "delivery_tag", d.DeliveryTag)
	}
}

// Close releases the current channel and connection. Safe to call more
// than once.
func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	if c.ch != nil {
		errs = append(errs, c.ch.Close())
		c.ch = nil
	}
	if c.conn != nil {
		errs = append(errs, c.conn.Close())
		c.conn = nil
	}
	return errors.Join(errs...)
}
