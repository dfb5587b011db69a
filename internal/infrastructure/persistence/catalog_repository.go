package persistence

import (
	"context"
	"errors"

	"github.com/groupbuy/backend/internal/domain/groupbuy"
	"github.com/groupbuy/backend/internal/domain/shared"
	"github.com/groupbuy/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormProductCatalog reads product snapshots from the products table
type GormProductCatalog struct {
	db *gorm.DB
}

// NewGormProductCatalog creates a new GormProductCatalog
func NewGormProductCatalog(db *gorm.DB) *GormProductCatalog {
	return &GormProductCatalog{db: db}
}

// GetProduct returns the snapshot of an active product
func (c *GormProductCatalog) GetProduct(ctx context.Context, productID string) (*groupbuy.ProductSnapshot, error) {
	var row models.ProductModel
	err := c.db.WithContext(ctx).
		Where("id = ? AND active = ?", productID, true).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("product not found")
		}
		return nil, storageErr("get product", err)
	}
	return row.ToSnapshot(), nil
}

var _ groupbuy.ProductCatalog = (*GormProductCatalog)(nil)
