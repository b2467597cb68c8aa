package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"restaurant-pos/internal/order/app/core"
	"restaurant-pos/internal/order/domain/models"
	"restaurant-pos/internal/xpkg/docstore"
	"restaurant-pos/internal/xpkg/logger"

	"github.com/google/uuid"
)

type OrderRepo struct {
	store docstore.Store
	mylog logger.Logger
	now   func() time.Time
}

func NewOrderRepo(store docstore.Store, mylog logger.Logger) *OrderRepo {
	return &OrderRepo{
		store: store,
		mylog: mylog,
		now:   time.Now,
	}
}

func orderPath(id string) string {
	return fmt.Sprintf("%s/%s", core.OrderCollection, id)
}

func customerOrdersCollection(uid string) string {
	return fmt.Sprintf("%s/%s/%s", core.UserCollection, uid, core.OrderCollection)
}

func customerOrderPath(uid, id string) string {
	return customerOrdersCollection(uid) + "/" + id
}

func (or *OrderRepo) Create(ctx context.Context, order models.Order) (models.Order, error) {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	now := or.now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now

	err := or.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return writeBoth(ctx, tx, order)
	})
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to insert order: %w", err)
	}
	or.mylog.Action("order_stored").Debug("Order written", "order_id", order.ID, "order_no", order.OrderNo, "customer_copy", order.Customer.UID != "")
	return order, nil
}

func (or *OrderRepo) Get(ctx context.Context, id string) (models.Order, error) {
	snap, err := or.store.Get(ctx, orderPath(id))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return models.Order{}, core.ErrOrderNotFound
		}
		return models.Order{}, fmt.Errorf("failed to get order: %w", err)
	}
	var order models.Order
	if err := snap.DataTo(&order); err != nil {
		return models.Order{}, fmt.Errorf("decode order %s: %w", id, err)
	}
	return order, nil
}

func (or *OrderRepo) ListByCustomer(ctx context.Context, uid string) ([]models.Order, error) {
	snaps, err := or.store.List(ctx, customerOrdersCollection(uid))
	if err != nil {
		return nil, fmt.Errorf("failed to list customer orders: %w", err)
	}
	orders := make([]models.Order, 0, len(snaps))
	for _, snap := range snaps {
		var order models.Order
		if err := snap.DataTo(&order); err != nil {
			return nil, fmt.Errorf("decode %s: %w", snap.Path, err)
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func (or *OrderRepo) Mutate(ctx context.Context, id string, fn func(order *models.Order) error) (models.Order, error) {
	var out models.Order
	err := or.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		snap, err := tx.Get(ctx, orderPath(id))
		if err != nil {
			if errors.Is(err, docstore.ErrNotFound) {
				return core.ErrOrderNotFound
			}
			return err
		}
		var order models.Order
		if err := snap.DataTo(&order); err != nil {
			return fmt.Errorf("decode order %s: %w", id, err)
		}
		if err := fn(&order); err != nil {
			return err
		}
		order.UpdatedAt = or.now().UTC()
		if err := writeBoth(ctx, tx, order); err != nil {
			return err
		}
		out = order
		return nil
	})
	if err != nil {
		return models.Order{}, err
	}
	return out, nil
}

// writeBoth writes the primary record and, for a known customer, the
// identical per-customer copy.
func writeBoth(ctx context.Context, tx docstore.Tx, order models.Order) error {
	if err := tx.Set(ctx, orderPath(order.ID), order); err != nil {
		return err
	}
	if order.Customer.UID == "" {
		return nil
	}
	return tx.Set(ctx, customerOrderPath(order.Customer.UID, order.ID), order)
}
