package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Delivery is one message handed to a consumer. Ack must be called exactly
// once after the message has been handled.
type Delivery struct {
	Body        []byte
	MessageID   string
	Redelivered bool
	Acker       func() error
}

// Ack acknowledges the delivery to the broker.
func (d Delivery) Ack() error {
	if d.Acker == nil {
		return nil
	}
	return d.Acker()
}

// Source yields deliveries until ctx is cancelled or the broker goes away.
type Source interface {
	Consume(ctx context.Context) (<-chan Delivery, error)
	Close() error
}

// AMQPConfig names the topology the consumer binds to.
type AMQPConfig struct {
	URL        string
	Exchange   string
	Queue      string
	RoutingKey string
	Prefetch   int
}

type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// AMQPSource consumes UserDeleted events from a RabbitMQ queue bound to a
// topic exchange.
type AMQPSource struct {
	conn *amqp.Connection
	ch   amqpChannel
	cfg  AMQPConfig
}

var _ Source = (*AMQPSource)(nil)

// DialAMQP connects to the broker and declares the exchange, queue and
// binding. Declarations are idempotent.
func DialAMQP(cfg AMQPConfig) (*AMQPSource, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("amqp url is required")
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	src, err := newAMQPSource(ch, cfg)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	src.conn = conn
	return src, nil
}

func newAMQPSource(ch amqpChannel, cfg AMQPConfig) (*AMQPSource, error) {
	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", cfg.Queue, err)
	}
	if err := ch.QueueBind(cfg.Queue, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		return nil, fmt.Errorf("bind queue %s: %w", cfg.Queue, err)
	}
	prefetch := cfg.Prefetch
	if prefetch < 1 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}
	return &AMQPSource{ch: ch, cfg: cfg}, nil
}

// Consume starts a manual-ack consumer. The returned channel is closed when
// ctx is done or the broker closes the underlying channel.
func (s *AMQPSource) Consume(ctx context.Context) (<-chan Delivery, error) {
	msgs, err := s.ch.Consume(s.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", s.cfg.Queue, err)
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				d := Delivery{
					Body:        m.Body,
					MessageID:   m.MessageId,
					Redelivered: m.Redelivered,
					Acker:       func() error { return m.Ack(false) },
				}
				select {
				case out <- d:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close releases the channel and connection.
func (s *AMQPSource) Close() error {
	var errs []error
	if s.ch != nil {
		if err := s.ch.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
