package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"restaurant-pos/internal/order/app/core"
	"restaurant-pos/internal/order/domain/models"
	"restaurant-pos/internal/xpkg/docstore"
)

// CounterRepo owns the orderCounters/{YYYYMMDD} documents, the only
// contended records in the system.
type CounterRepo struct {
	store docstore.Store
}

func NewCounterRepo(store docstore.Store) *CounterRepo {
	return &CounterRepo{store: store}
}

func counterPath(dateKey string) string {
	return fmt.Sprintf("%s/%s", core.CounterCollection, dateKey)
}

func (cr *CounterRepo) Increment(ctx context.Context, dateKey string, orderType models.OrderType, at time.Time) (int, error) {
	var total int
	err := cr.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		current, err := readCounter(ctx, tx, dateKey)
		if err != nil {
			return err
		}
		total = current.Total + 1
		return tx.Set(ctx, counterPath(dateKey), map[string]any{
			"date":                   dateKey,
			"total":                  total,
			orderType.CounterField(): current.ForType(orderType) + 1,
			"updatedAt":              at.UTC(),
		}, docstore.Merge())
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (cr *CounterRepo) Get(ctx context.Context, dateKey string) (models.DailyCounter, error) {
	return readCounter(ctx, cr.store, dateKey)
}

type getter interface {
	Get(ctx context.Context, path string) (docstore.Snapshot, error)
}

// readCounter returns a zero counter for a date with no orders yet.
func readCounter(ctx context.Context, g getter, dateKey string) (models.DailyCounter, error) {
	c := models.DailyCounter{Date: dateKey}
	snap, err := g.Get(ctx, counterPath(dateKey))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return c, nil
		}
		return c, err
	}
	if err := snap.DataTo(&c); err != nil {
		return c, fmt.Errorf("decode counter %s: %w", dateKey, err)
	}
	return c, nil
}
