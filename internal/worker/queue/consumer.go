// Package queue consumes conversion requests from RabbitMQ.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/semaphore"

	"docconv/internal/config"
	apperrors "docconv/internal/pkg/errors"
	"docconv/internal/pkg/logger"
	"docconv/internal/worker/processor"
)

const (
	deliveryCountHeader = "x-delivery-count"
	deadLetterArg       = "x-dead-letter-exchange"

	maxReconnectDelay = time.Minute
	abortGrace        = 10 * time.Second
)

var errDeliveriesClosed = errors.New("deliveries channel closed unexpectedly")

// Handler runs one delivery to a terminal decision.
type Handler interface {
	Process(ctx context.Context, body []byte, d processor.Delivery) processor.Result
}

type Consumer struct {
	cfg     config.RabbitConfig
	tag     string
	handler Handler
	log     *logger.Logger

	// gate admits one pipeline at a time; the renderer is not reentrant.
	gate *semaphore.Weighted
	dial func(url string) (*amqp.Connection, error)

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewConsumer(cfg config.RabbitConfig, h Handler, log *logger.Logger) *Consumer {
	if log == nil {
		log = logger.NewDefault()
	}
	tag := cfg.ConsumerTag
	if tag == "" {
		tag = "docconv-" + uuid.NewString()
	}
	if cfg.ConnectRetries < 1 {
		cfg.ConnectRetries = 1
	}
	return &Consumer{
		cfg:     cfg,
		tag:     tag,
		handler: h,
		log:     log.WithComponent("consumer"),
		gate:    semaphore.NewWeighted(1),
		dial:    amqp.Dial,
	}
}

func (c *Consumer) Tag() string { return c.tag }

// Connect dials the broker, retrying up to the configured number of times.
func (c *Consumer) Connect(ctx context.Context) error {
	_, err := c.connection(ctx)
	return err
}

// Channel opens a new channel on the current connection.
func (c *Consumer) Channel() (*amqp.Channel, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil || conn.IsClosed() {
		return nil, apperrors.Unavailable("rabbitmq")
	}
	return conn.Channel()
}

// Ping reports whether the broker connection is open.
func (c *Consumer) Ping(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.conn.IsClosed() {
		return apperrors.Unavailable("rabbitmq")
	}
	return nil
}

// Run consumes until drain is canceled. Admission stops on drain; the
// in-flight pipeline keeps running under hard. A session that ends
// unexpectedly is re-established with backoff.
func (c *Consumer) Run(drain, hard context.Context) error {
	delay := c.cfg.ConnectDelay
	if delay <= 0 {
		delay = time.Second
	}

	for {
		established, err := c.session(drain, hard)
		if drain.Err() != nil {
			c.log.Info("consumer stopped admitting deliveries")
			return nil
		}
		c.dropChannel()

		if established {
			delay = c.cfg.ConnectDelay
			if delay <= 0 {
				delay = time.Second
			}
		}
		c.log.WithError(err).Warn("consumer session ended, reconnecting", "after", delay.String())
		if err := sleepWithContext(drain, delay); err != nil {
			return nil
		}
		delay = min(delay*2, maxReconnectDelay)
	}
}

// session runs one connect-declare-consume cycle. It reports whether the
// consume loop was reached.
func (c *Consumer) session(drain, hard context.Context) (bool, error) {
	conn, err := c.connection(drain)
	if err != nil {
		return false, err
	}

	ch, err := conn.Channel()
	if err != nil {
		return false, apperrors.WrapWithCode(err, apperrors.CodeUnavailable, "queue.session", "open channel")
	}
	if err := declare(ch, c.cfg); err != nil {
		_ = ch.Close()
		return false, err
	}

	deliveries, err := ch.Consume(
		c.cfg.Queue,
		c.tag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return false, apperrors.WrapWithCode(err, apperrors.CodeUnavailable, "queue.session", "register consumer")
	}

	c.mu.Lock()
	c.ch = ch
	c.mu.Unlock()

	c.log.Info("consuming",
		"queue", c.cfg.Queue,
		"exchange", c.cfg.Exchange,
		"prefetch", max(c.cfg.Prefetch, 1),
		"consumer_tag", c.tag,
	)

	for {
		select {
		case <-drain.Done():
			return true, nil
		case d, ok := <-deliveries:
			if !ok {
				return true, errDeliveriesClosed
			}
			c.handle(drain, hard, d)
		}
	}
}

// handle admits d through the gate, runs the pipeline and settles the
// delivery. When admission is refused the delivery stays unsettled and the
// broker redelivers it once the channel closes.
func (c *Consumer) handle(drain, hard context.Context, d amqp.Delivery) {
	log := c.log.WithDelivery(d.DeliveryTag)

	if err := c.gate.Acquire(drain, 1); err != nil {
		log.Info("shutdown in progress, leaving delivery for redelivery")
		return
	}
	defer c.gate.Release(1)

	ctx := logger.ContextWithDelivery(hard, d.DeliveryTag)
	res := c.handler.Process(ctx, d.Body, processor.Delivery{
		Tag:           d.DeliveryTag,
		Redelivered:   d.Redelivered,
		DeliveryCount: deliveryCount(d.Headers),
	})
	settle(log, d, res.Decision)
}

func settle(log *logger.Logger, d amqp.Delivery, dec processor.Decision) {
	var err error
	switch dec.Action {
	case processor.ActionAck:
		err = d.Ack(false)
	case processor.ActionNack:
		err = d.Nack(false, dec.Requeue)
	default:
		log.Warn("delivery left unsettled")
		return
	}
	if err != nil {
		log.WithError(err).Error("settle failed",
			"action", dec.Action.String(),
			"requeue", dec.Requeue,
		)
	}
}

// Shutdown cancels the consumer tag, waits for the in-flight pipeline and
// closes the channel and connection. Close errors are swallowed.
func (c *Consumer) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	ch, conn := c.ch, c.conn
	c.ch, c.conn = nil, nil
	c.mu.Unlock()

	if ch != nil {
		if err := ch.Cancel(c.tag, false); err != nil {
			c.log.WithError(err).Debug("consumer cancel failed")
		}
	}

	if !c.waitIdle(ctx) {
		// The hard context expires with ctx; give the aborted pipeline
		// time to release its workspace.
		grace, cancel := context.WithTimeout(context.Background(), abortGrace)
		idle := c.waitIdle(grace)
		cancel()
		if !idle {
			c.log.Warn("in-flight job still running at close")
		}
	}

	if ch != nil {
		_ = ch.Close()
	}
	if conn != nil {
		_ = conn.Close()
	}
	c.log.Info("consumer closed")
	return nil
}

func (c *Consumer) waitIdle(ctx context.Context) bool {
	if err := c.gate.Acquire(ctx, 1); err != nil {
		return false
	}
	c.gate.Release(1)
	return true
}

func (c *Consumer) connection(ctx context.Context) (*amqp.Connection, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil && !conn.IsClosed() {
		return conn, nil
	}

	conn, err := c.connectWithRetry(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return conn, nil
}

func (c *Consumer) connectWithRetry(ctx context.Context) (*amqp.Connection, error) {
	var (
		conn *amqp.Connection
		err  error
	)
	retries := c.cfg.ConnectRetries
	for i := 0; i < retries; i++ {
		c.log.Info("connecting to rabbitmq", "attempt", i+1, "max_attempts", retries)
		conn, err = c.dial(c.cfg.URL)
		if err == nil {
			c.log.Info("connected to rabbitmq")
			return conn, nil
		}

		c.log.WithError(err).Warn("rabbitmq connect failed")
		if i < retries-1 {
			if serr := sleepWithContext(ctx, c.cfg.ConnectDelay); serr != nil {
				return nil, apperrors.Wrap(serr, "queue.connect", "connect aborted")
			}
		}
	}
	return nil, apperrors.WrapWithCode(err, apperrors.CodeUnavailable, "queue.connect",
		fmt.Sprintf("failed to connect after %d attempts", retries))
}

func (c *Consumer) dropChannel() {
	c.mu.Lock()
	ch := c.ch
	c.ch = nil
	c.mu.Unlock()
	if ch != nil {
		_ = ch.Close()
	}
}

// topology is the subset of *amqp.Channel used to declare the consumer side.
type topology interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
}

func declare(ch topology, cfg config.RabbitConfig) error {
	if cfg.Exchange != "" {
		if err := ch.ExchangeDeclare(
			cfg.Exchange,
			amqp.ExchangeTopic,
			true,  // durable
			false, // auto-deleted
			false, // internal
			false, // no-wait
			nil,
		); err != nil {
			return apperrors.Wrap(err, "queue.declare", "declare exchange")
		}
	}

	var args amqp.Table
	if cfg.DeadLetterExchange != "" {
		args = amqp.Table{deadLetterArg: cfg.DeadLetterExchange}
	}
	if _, err := ch.QueueDeclare(
		cfg.Queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		args,
	); err != nil {
		return apperrors.Wrap(err, "queue.declare", "declare queue")
	}

	if cfg.Exchange != "" {
		key := cfg.RoutingKey
		if key == "" {
			key = "#"
		}
		if err := ch.QueueBind(cfg.Queue, key, cfg.Exchange, false, nil); err != nil {
			return apperrors.Wrap(err, "queue.declare", "bind queue")
		}
	}

	if err := ch.Qos(max(cfg.Prefetch, 1), 0, false); err != nil {
		return apperrors.Wrap(err, "queue.declare", "set qos")
	}
	return nil
}

// deliveryCount reads the quorum-queue redelivery header; 0 when absent.
func deliveryCount(h amqp.Table) int {
	switch v := h[deliveryCountHeader].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint8:
		return int(v)
	case uint16:
		return int(v)
	case uint32:
		return int(v)
	default:
		return 0
	}
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
