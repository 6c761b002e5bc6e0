package catalog

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/imrishuroy/marketplace-orderflow/internal/marketplace"
)

// ItemSource fetches listings from the marketplace.
type ItemSource interface {
	FetchItem(ctx context.Context, itemID string) (*marketplace.Item, error)
}

// SyncResult describes what a drift check did.
type SyncResult string

const (
	SyncUntracked SyncResult = "untracked"
	SyncUnchanged SyncResult = "unchanged"
	SyncUpdated   SyncResult = "updated"
)

// DriftDetector copies price, stock and status changes of tracked listings into the catalog.
type DriftDetector struct {
	items   ItemSource
	repo    *Repository
	nowFunc func() time.Time
	logger  *zap.Logger
}

// NewDriftDetector returns a DriftDetector.
func NewDriftDetector(items ItemSource, repo *Repository, logger *zap.Logger) *DriftDetector {
	return &DriftDetector{items: items, repo: repo, nowFunc: time.Now, logger: logger.Named("catalog")}
}

// Sync compares the listing with the stored product and writes only the fields that differ.
// A listing that is not in the catalog is not an error.
func (d *DriftDetector) Sync(ctx context.Context, itemID string) (SyncResult, error) {
	item, err := d.items.FetchItem(ctx, itemID)
	if err != nil {
		return "", err
	}

	product, err := d.repo.FindByListingID(ctx, item.ID)
	if err != nil {
		return "", err
	}
	log := d.logger.With(zap.String("item_id", item.ID))
	if product == nil {
		log.Info("listing not tracked in catalog")
		return SyncUntracked, nil
	}

	updates := Diff(product, item)
	if len(updates) == 0 {
		log.Debug("listing unchanged")
		return SyncUnchanged, nil
	}
	updates[ColumnLastUpdated] = d.nowFunc().UTC()

	if err := d.repo.UpdateFields(ctx, product.ID, updates); err != nil {
		return "", err
	}
	log.Info("catalog product updated", zap.Any("fields", updates))
	return SyncUpdated, nil
}

// Diff returns the monitored columns whose values differ between product and item.
func Diff(product *Product, item *marketplace.Item) map[string]any {
	updates := map[string]any{}
	price := decimal.NewFromFloat(item.Price)
	if !product.Price.Equal(price) {
		updates[ColumnPrice] = price
	}
	if product.Stock != item.AvailableQuantity {
		updates[ColumnStock] = item.AvailableQuantity
	}
	if product.Status != item.Status {
		updates[ColumnStatus] = item.Status
	}
	return updates
}
