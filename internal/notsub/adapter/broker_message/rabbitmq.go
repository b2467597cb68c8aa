package brokermessage

import (
	"context"
	"fmt"
	"sync"

	"restaurant-pos/internal/notsub/app/core"
	"restaurant-pos/internal/xpkg/config"
	"restaurant-pos/internal/xpkg/logger"
	"restaurant-pos/internal/xpkg/models"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQ consumes notification requests from the order_notifications queue.
type RabbitMQ struct {
	cfg      *config.RabbitMQ
	conn     *amqp.Connection
	ch       *amqp.Channel
	mylog    logger.Logger
	mu       sync.Mutex
	prefetch int
}

// create RabbitMQ adapter
func New(rabbitmqCfg *config.RabbitMQ, prefetch int, mylog logger.Logger) (*RabbitMQ, error) {
	r := &RabbitMQ{
		cfg:      rabbitmqCfg,
		mylog:    mylog,
		prefetch: prefetch,
	}
	if err := r.connect(); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrRMQConn, err)
	}
	return r, nil
}

func (r *RabbitMQ) IsAlive() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil || r.conn.IsClosed() {
		return core.ErrMBConn
	}
	if r.ch == nil || r.ch.IsClosed() {
		return core.ErrMBCh
	}
	return nil
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ch != nil && !r.ch.IsClosed() {
		if err := r.ch.Close(); err != nil {
			return fmt.Errorf("close rabbitmq channel: %w", err)
		}
	}
	if r.conn != nil && !r.conn.IsClosed() {
		if err := r.conn.Close(); err != nil {
			return fmt.Errorf("close rabbitmq connection: %w", err)
		}
	}
	return nil
}

// connect dials the broker and declares the topology the subscriber relies
// on, so it can start before the order service.
func (r *RabbitMQ) connect() error {
	conn, err := amqp.Dial(r.cfg.URL())
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("%w: %w", core.ErrMBCh, err)
	}

	if err := ch.ExchangeDeclare(models.NotificationExchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(models.NotificationQueue, true, false, false, false, nil); err != nil {
		conn.Close()
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(models.NotificationQueue, models.RoutingKeyPattern, models.NotificationExchange, false, nil); err != nil {
		conn.Close()
		return fmt.Errorf("bind queue: %w", err)
	}

	if err := ch.Qos(r.prefetch, 0, false); err != nil {
		conn.Close()
		return fmt.Errorf("set qos: %w", err)
	}

	r.mu.Lock()
	r.conn = conn
	r.ch = ch
	r.mu.Unlock()
	return nil
}

func (r *RabbitMQ) ConsumeMessage(ctx context.Context, consumerName string) (<-chan amqp.Delivery, error) {
	r.mu.Lock()
	ch := r.ch
	r.mu.Unlock()
	return ch.ConsumeWithContext(ctx, models.NotificationQueue, consumerName, false, false, false, false, nil)
}
