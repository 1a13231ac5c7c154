// Package outcome reports job results on a secondary RabbitMQ queue.
package outcome

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"docconv/internal/pkg/logger"
)

// Message is the body published for every terminal job.
type Message struct {
	UUID    string `json:"uuid"`
	Success bool   `json:"success"`
}

// Channel is the subset of *amqp.Channel the publisher uses.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Opener hands out a fresh channel on the broker connection.
type Opener interface {
	OpenChannel() (Channel, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func() (Channel, error)

func (f OpenerFunc) OpenChannel() (Channel, error) { return f() }

type Publisher struct {
	open    Opener
	queue   string
	timeout time.Duration
	log     *logger.Logger
}

// New returns a publisher for queue. An empty queue name disables publishing.
func New(open Opener, queue string, timeout time.Duration, log *logger.Logger) *Publisher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Publisher{
		open:    open,
		queue:   queue,
		timeout: timeout,
		log:     log.WithComponent("outcome"),
	}
}

func (p *Publisher) Enabled() bool {
	return p.queue != "" && p.open != nil
}

// Publish sends {uuid, success}. Failures are logged and dropped.
func (p *Publisher) Publish(ctx context.Context, uuid string, success bool) {
	if !p.Enabled() {
		return
	}
	log := p.log.FromContext(ctx)

	if err := p.publish(ctx, Message{UUID: uuid, Success: success}); err != nil {
		log.WithError(err).Warn("outcome publish failed", "queue", p.queue, "success", success)
		return
	}
	log.Debug("outcome published", "queue", p.queue, "success", success)
}

func (p *Publisher) publish(ctx context.Context, m Message) error {
	body, err := json.Marshal(m)
	if err != nil {
		return err
	}

	ch, err := p.open.OpenChannel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(
		p.queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return err
	}

	pctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	return ch.PublishWithContext(pctx,
		"",      // default exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
}
