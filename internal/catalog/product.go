package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Column names of the external productos table.
const (
	ColumnPrice       = "precio"
	ColumnStock       = "stock"
	ColumnStatus      = "estado"
	ColumnLastUpdated = "ultima_actualizacion"
)

// Product is the subset of the productos table the service reads and writes.
// The table is owned elsewhere; no migrations are run against it.
type Product struct {
	ID          int64           `gorm:"column:id;primaryKey"`
	ListingID   string          `gorm:"column:id_publicacion"`
	Title       string          `gorm:"column:titulo"`
	SKU         string          `gorm:"column:sku"`
	Price       decimal.Decimal `gorm:"column:precio;type:decimal(12,2)"`
	Stock       int             `gorm:"column:stock"`
	Status      string          `gorm:"column:estado"`
	LastUpdated *time.Time      `gorm:"column:ultima_actualizacion"`
}

// TableName maps Product onto the external table.
func (Product) TableName() string { return "productos" }

// Repository reads and updates products.
type Repository struct {
	db *gorm.DB
}

// NewRepository returns a Repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByListingID returns the product for a marketplace listing, or (nil, nil) when untracked.
func (r *Repository) FindByListingID(ctx context.Context, listingID string) (*Product, error) {
	var p Product
	err := r.db.WithContext(ctx).Where("id_publicacion = ?", listingID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find product %s: %w", listingID, err)
	}
	return &p, nil
}

// UpdateFields writes only the given columns.
func (r *Repository) UpdateFields(ctx context.Context, id int64, fields map[string]any) error {
	err := r.db.WithContext(ctx).Model(&Product{}).Where("id = ?", id).Updates(fields).Error
	if err != nil {
		return fmt.Errorf("update product %d: %w", id, err)
	}
	return nil
}
