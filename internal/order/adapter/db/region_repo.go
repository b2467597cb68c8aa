package db

import (
	"context"
	"errors"
	"fmt"

	"restaurant-pos/internal/order/app/core"
	"restaurant-pos/internal/order/domain/geo"
	"restaurant-pos/internal/xpkg/docstore"
)

type RegionRepo struct {
	store docstore.Store
}

func NewRegionRepo(store docstore.Store) *RegionRepo {
	return &RegionRepo{store: store}
}

func (rr *RegionRepo) Get(ctx context.Context) (geo.Region, error) {
	snap, err := rr.store.Get(ctx, core.RegionDocumentPath)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return geo.Region{}, core.ErrRegionNotConfigured
		}
		return geo.Region{}, fmt.Errorf("failed to get delivery region: %w", err)
	}
	var region geo.Region
	if err := snap.DataTo(&region); err != nil {
		return geo.Region{}, fmt.Errorf("decode delivery region: %w", err)
	}
	return region, nil
}

// Save replaces the region and recomputes its bounding box.
func (rr *RegionRepo) Save(ctx context.Context, region geo.Region) (geo.Region, error) {
	region = region.WithBoundingBox()
	if err := rr.store.Set(ctx, core.RegionDocumentPath, region); err != nil {
		return geo.Region{}, fmt.Errorf("failed to save delivery region: %w", err)
	}
	return region, nil
}

func (rr *RegionRepo) EnsureDefault(ctx context.Context, region geo.Region) error {
	region = region.WithBoundingBox()
	return rr.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		_, err := tx.Get(ctx, core.RegionDocumentPath)
		if err == nil {
			return nil
		}
		if !errors.Is(err, docstore.ErrNotFound) {
			return err
		}
		return tx.Set(ctx, core.RegionDocumentPath, region)
	})
}
