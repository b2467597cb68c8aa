package core

import (
	"context"
	"time"

	"restaurant-pos/internal/order/domain/geo"
	"restaurant-pos/internal/order/domain/models"
)

type ICounterRepo interface {
	// Increment bumps the total and per-type counts of the dateKey counter in
	// one store transaction and returns the new total.
	Increment(ctx context.Context, dateKey string, orderType models.OrderType, at time.Time) (int, error)
	Get(ctx context.Context, dateKey string) (models.DailyCounter, error)
}

type IOrderRepo interface {
	// Create writes the primary and the per-customer copy in one transaction.
	Create(ctx context.Context, order models.Order) (models.Order, error)
	Get(ctx context.Context, id string) (models.Order, error)
	ListByCustomer(ctx context.Context, uid string) ([]models.Order, error)
	// Mutate reads the order, applies fn and writes both copies back in one
	// transaction. fn may run more than once and must be free of side effects.
	Mutate(ctx context.Context, id string, fn func(order *models.Order) error) (models.Order, error)
}

type IRegionRepo interface {
	Get(ctx context.Context) (geo.Region, error)
	Save(ctx context.Context, region geo.Region) (geo.Region, error)
	// EnsureDefault stores region only when no region record exists.
	EnsureDefault(ctx context.Context, region geo.Region) error
}
