package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"rentradar-backend/pkg/models"
)

func connectToRabbitMQ(url string) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error
	for i := 0; i < MaxConnectRetry; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			slog.Info("connected to rabbitmq")
			return conn, nil
		}
		slog.Warn("failed to connect to rabbitmq", "attempt", i+1, "max_attempts", MaxConnectRetry, "error", err)
		time.Sleep(RetryDelay)
	}
	slog.Error("failed to connect to rabbitmq", "attempts", MaxConnectRetry, "error", err)
	return nil, fmt.Errorf("failed to connect after %d attempts: %w", MaxConnectRetry, err)
}

type RabbitMQPublisher struct {
	connLock   sync.RWMutex
	conn       *amqp.Connection
	channel    *amqp.Channel
	url        string
	destructor sync.Once
}

func NewRabbitMQPublisher(rabbitMQURL string) (*RabbitMQPublisher, error) {
	p := &RabbitMQPublisher{url: rabbitMQURL}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *RabbitMQPublisher) connect() error {
	var err error
	p.conn, err = connectToRabbitMQ(p.url)
	if err != nil {
		return err
	}

	p.channel, err = p.conn.Channel()
	if err != nil {
		p.conn.Close()
		slog.Error("failed to open rabbitmq channel", "error", err)
		return fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}

	if _, err := p.channel.QueueDeclare(OfferQueue, true, false, false, false, nil); err != nil {
		p.channel.Close()
		p.conn.Close()
		return fmt.Errorf("failed to declare queue %s: %w", OfferQueue, err)
	}

	return nil
}

func (p *RabbitMQPublisher) reconnectIfNeeded() error {
	p.connLock.RLock()
	healthy := p.conn != nil && !p.conn.IsClosed()
	p.connLock.RUnlock()
	if healthy {
		return nil
	}

	p.connLock.Lock()
	defer p.connLock.Unlock()
	if p.conn != nil && !p.conn.IsClosed() {
		return nil
	}
	slog.Warn("rabbitmq connection lost, reconnecting")
	return p.connect()
}

func (p *RabbitMQPublisher) publish(ctx context.Context, queue string, payload interface{}) error {
	if err := p.reconnectIfNeeded(); err != nil {
		return err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	p.connLock.RLock()
	defer p.connLock.RUnlock()

	return p.channel.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         data,
	})
}

func (p *RabbitMQPublisher) PublishOfferTask(ctx context.Context, payload models.OfferTaskPayload) error {
	return p.publish(ctx, OfferQueue, payload)
}

func (p *RabbitMQPublisher) Close() {
	p.destructor.Do(func() {
		p.connLock.Lock()
		defer p.connLock.Unlock()
		if p.channel != nil {
			p.channel.Close()
		}
		if p.conn != nil {
			p.conn.Close()
		}
	})
}

type rabbitMQTask struct {
	queue    string
	delivery amqp.Delivery
}

func (t *rabbitMQTask) Type() string {
	return t.queue
}

func (t *rabbitMQTask) Payload() []byte {
	return t.delivery.Body
}

func (t *rabbitMQTask) Ack() error {
	return t.delivery.Ack(false)
}

func (t *rabbitMQTask) Nack() error {
	return t.delivery.Nack(false, true)
}

func (t *rabbitMQTask) Reject() error {
	return t.delivery.Reject(false)
}

type RabbitMQReceiver struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	tasks      chan Task
	destructor sync.Once
}

// NewRabbitMQReceiver consumes the offer queue with prefetch 1 so each fetch
// worker holds at most one in-flight offer.
func NewRabbitMQReceiver(rabbitMQURL string) (*RabbitMQReceiver, error) {
	conn, err := connectToRabbitMQ(rabbitMQURL)
	if err != nil {
		return nil, err
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}

	if err := channel.Qos(1, 0, false); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}

	if _, err := channel.QueueDeclare(OfferQueue, true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", OfferQueue, err)
	}

	deliveries, err := channel.Consume(OfferQueue, "", false, false, false, false, nil)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to start consuming queue %s: %w", OfferQueue, err)
	}

	r := &RabbitMQReceiver{conn: conn, channel: channel, tasks: make(chan Task)}

	go func() {
		defer close(r.tasks)
		for d := range deliveries {
			r.tasks <- &rabbitMQTask{queue: OfferQueue, delivery: d}
		}
	}()

	return r, nil
}

func (r *RabbitMQReceiver) Tasks() <-chan Task {
	return r.tasks
}

func (r *RabbitMQReceiver) Close() {
	r.destructor.Do(func() {
		if r.channel != nil {
			r.channel.Close()
		}
		if r.conn != nil {
			r.conn.Close()
		}
	})
}
