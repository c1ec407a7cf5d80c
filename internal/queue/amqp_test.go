package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type fakeChannel struct {
	declared []string
	bound    string
	prefetch int
	deliver  chan amqp.Delivery
	bindErr  error
	closed   bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	f.declared = append(f.declared, "exchange:"+name+":"+kind)
	return nil
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	f.declared = append(f.declared, "queue:"+name)
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	f.bound = name + "<-" + exchange + ":" + key
	return f.bindErr
}

func (f *fakeChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	f.prefetch = prefetchCount
	return nil
}

func (f *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	return f.deliver, nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

type fakeAcknowledger struct {
	acked []uint64
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.acked = append(f.acked, tag)
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error { return nil }

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error { return nil }

func testConfig() AMQPConfig {
	return AMQPConfig{Exchange: "user.exchange", Queue: "datasource.user.deleted", RoutingKey: "user.deleted"}
}

func TestNewAMQPSourceDeclaresTopology(t *testing.T) {
	ch := &fakeChannel{}
	if _, err := newAMQPSource(ch, testConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"exchange:user.exchange:topic", "queue:datasource.user.deleted"}
	if len(ch.declared) != len(want) || ch.declared[0] != want[0] || ch.declared[1] != want[1] {
		t.Fatalf("unexpected declarations %v", ch.declared)
	}
	if ch.bound != "datasource.user.deleted<-user.exchange:user.deleted" {
		t.Fatalf("unexpected binding %q", ch.bound)
	}
	if ch.prefetch != 1 {
		t.Fatalf("expected default prefetch 1, got %d", ch.prefetch)
	}
}

func TestNewAMQPSourceBindError(t *testing.T) {
	ch := &fakeChannel{bindErr: errors.New("access refused")}
	if _, err := newAMQPSource(ch, testConfig()); err == nil {
		t.Fatalf("expected bind error")
	}
}

func TestConsumeForwardsAndAcks(t *testing.T) {
	ch := &fakeChannel{deliver: make(chan amqp.Delivery, 1)}
	src, err := newAMQPSource(ch, testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out, err := src.Consume(ctx)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}

	acker := &fakeAcknowledger{}
	ch.deliver <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 9, MessageId: "m-1", Body: []byte(`{"userId":1}`)}

	select {
	case d := <-out:
		if d.MessageID != "m-1" || string(d.Body) != `{"userId":1}` {
			t.Fatalf("unexpected delivery %+v", d)
		}
		if err := d.Ack(); err != nil {
			t.Fatalf("ack: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for delivery")
	}
	if len(acker.acked) != 1 || acker.acked[0] != 9 {
		t.Fatalf("expected tag 9 acked, got %v", acker.acked)
	}

	close(ch.deliver)
	select {
	case _, ok := <-out:
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("channel not closed after broker close")
	}
}

func TestConsumeStopsOnCancel(t *testing.T) {
	ch := &fakeChannel{deliver: make(chan amqp.Delivery)}
	src, err := newAMQPSource(ch, testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	out, err := src.Consume(ctx)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	cancel()

	select {
	case _, ok := <-out:
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("channel not closed after cancel")
	}

	if err := src.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !ch.closed {
		t.Fatalf("expected channel closed")
	}
}

func TestDeliveryAckWithoutAcker(t *testing.T) {
	if err := (Delivery{}).Ack(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
