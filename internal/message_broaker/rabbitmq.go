package message_broaker

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	publishTimeout = 5 * time.Second
	consumeBuffer  = 256
)

// RabbitMQ broadcasts hub events through a fanout exchange. Each process binds
// its own exclusive, server-named queue, so every process sees every event.
type RabbitMQ struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	queue    string
}

// NewRabbitMQ dials url and binds a private queue to exchange.
func NewRabbitMQ(url, exchange string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	queue, err := bindFanoutQueue(ch, exchange)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &RabbitMQ{conn: conn, channel: ch, exchange: exchange, queue: queue}, nil
}

func bindFanoutQueue(ch *amqp.Channel, exchange string) (string, error) {
	// durable exchange, auto-deleted exclusive queue
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return "", fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return "", fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", exchange, false, nil); err != nil {
		return "", fmt.Errorf("bind queue %s: %w", q.Name, err)
	}
	return q.Name, nil
}

// Publish sends message to the exchange. topic becomes the routing key, which
// a fanout exchange ignores.
func (r *RabbitMQ) Publish(topic string, message []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	msg := amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now(),
		Body:        message,
	}
	if err := r.channel.PublishWithContext(ctx, r.exchange, topic, false, false, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", r.exchange, err)
	}
	return nil
}

// Consume streams this process's queue until ctx is done or the channel closes.
// topic is not used for routing.
func (r *RabbitMQ) Consume(ctx context.Context, topic string) (<-chan []byte, error) {
	deliveries, err := r.channel.ConsumeWithContext(ctx, r.queue, "", true, true, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", r.queue, err)
	}

	out := make(chan []byte, consumeBuffer)
	go func() {
		defer close(out)
		for d := range deliveries {
			select {
			case out <- d.Body:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (r *RabbitMQ) Close() error {
	chErr := r.channel.Close()
	connErr := r.conn.Close()
	if chErr != nil {
		return chErr
	}
	return connErr
}
