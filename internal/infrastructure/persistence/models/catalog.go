package models

import (
	"time"

	"github.com/groupbuy/backend/internal/domain/groupbuy"
	"github.com/groupbuy/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// ProductModel is a read-only row of the product catalog. The catalog is
// maintained by another service; this service only snapshots from it.
type ProductModel struct {
	ID        string          `gorm:"type:varchar(100);primary_key"`
	Name      string          `gorm:"type:varchar(200);not null"`
	ImageURL  string          `gorm:"column:image_url;type:varchar(500)"`
	Price     decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Currency  string          `gorm:"type:varchar(3);not null"`
	Active    bool            `gorm:"not null;default:true"`
	UpdatedAt time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ProductModel) TableName() string {
	return "products"
}

// ToSnapshot converts the row into the snapshot frozen into a group order
func (m *ProductModel) ToSnapshot() *groupbuy.ProductSnapshot {
	cur := valueobject.Currency(m.Currency)
	if cur == "" {
		cur = valueobject.DefaultCurrency
	}
	return &groupbuy.ProductSnapshot{
		ProductID: m.ID,
		Name:      m.Name,
		ImageURL:  m.ImageURL,
		BasePrice: m.Price,
		Currency:  cur,
	}
}
