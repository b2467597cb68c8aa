package core

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

type IRabbitMQ interface {
	Close() error
	IsAlive() error
	ConsumeMessage(ctx context.Context, consumerName string) (<-chan amqp.Delivery, error)
}
