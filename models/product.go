package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ProductStatus string

const (
	ProductStatusActive   ProductStatus = "active"
	ProductStatusInactive ProductStatus = "inactive"
)

// Product is owned by the catalog. Stock and SoldCount are only ever written by the inventory ledger.
// A nil Stock means the product is not stock-tracked.
type Product struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string          `gorm:"type:varchar(255);not null" json:"name"`
	Description string          `gorm:"type:text" json:"description,omitempty"`
	SKU         string          `gorm:"type:varchar(64);index" json:"sku,omitempty"`
	Price       decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"price"`
	Currency    string          `gorm:"type:varchar(10);not null" json:"currency"`
	Status      ProductStatus   `gorm:"type:varchar(20);not null;default:'active'" json:"status"`
	Stock       *int            `json:"stock"`
	SoldCount   int             `gorm:"not null;default:0" json:"sold_count"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}

// IsAvailable reports whether the product can be sold at all.
func (p *Product) IsAvailable() bool {
	return p.Status == ProductStatusActive && p.Price.IsPositive()
}

// TracksStock reports whether stock is counted for this product.
func (p *Product) TracksStock() bool {
	return p.Stock != nil
}

// HasStock reports whether quantity units can be taken. Untracked products always can.
func (p *Product) HasStock(quantity int) bool {
	return p.Stock == nil || *p.Stock >= quantity
}
