package core

import (
	"context"

	"restaurant-pos/internal/xpkg/models"
)

type IRabbitMQ interface {
	Close() error
	IsAlive() error
	PushMessage(ctx context.Context, message models.NotificationMessage) error
}
