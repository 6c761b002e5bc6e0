package catalog

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StockWriter pushes a new available quantity to the marketplace.
type StockWriter interface {
	UpdateItemStock(ctx context.Context, itemID string, quantity int) error
}

// Listings reads and writes listing stock on the marketplace.
type Listings interface {
	ItemSource
	StockWriter
}

// Inventory applies the stock effect of a sale to the catalog and keeps the
// listing from advertising more than the catalog holds.
type Inventory struct {
	repo     *Repository
	listings Listings
	nowFunc  func() time.Time
	logger   *zap.Logger
}

// NewInventory returns an Inventory.
func NewInventory(repo *Repository, listings Listings, logger *zap.Logger) *Inventory {
	return &Inventory{repo: repo, listings: listings, nowFunc: time.Now, logger: logger.Named("inventory")}
}

// ApplySale decrements the tracked stock of itemID by quantity, never below zero.
// The marketplace has already taken the sale off the listing, so the listing is
// only written when it still shows more units than the catalog has left.
// Untracked listings are left alone.
func (i *Inventory) ApplySale(ctx context.Context, itemID string, quantity int) error {
	product, err := i.repo.FindByListingID(ctx, itemID)
	if err != nil {
		return err
	}
	log := i.logger.With(zap.String("item_id", itemID))
	if product == nil {
		log.Debug("sold listing not tracked, stock untouched")
		return nil
	}

	stock := product.Stock - quantity
	if stock < 0 {
		stock = 0
	}

	item, err := i.listings.FetchItem(ctx, itemID)
	if err != nil {
		return err
	}
	if item != nil && item.AvailableQuantity > stock {
		log.Info("capping listing stock to catalog",
			zap.Int("listing", item.AvailableQuantity), zap.Int("catalog", stock))
		if err := i.listings.UpdateItemStock(ctx, itemID, stock); err != nil {
			return err
		}
	}

	return i.repo.UpdateFields(ctx, product.ID, map[string]any{
		ColumnStock:       stock,
		ColumnLastUpdated: i.nowFunc().UTC(),
	})
}
