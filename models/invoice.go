package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Invoice is the purchase snapshot produced by checkout. Rows are soft-retired, never hard deleted.
type Invoice struct {
	ID          uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	Number      string            `gorm:"type:varchar(32);uniqueIndex;not null" json:"number"`
	UserID      uuid.UUID         `gorm:"type:uuid;not null;index" json:"user_id"`
	AddressID   uuid.UUID         `gorm:"type:uuid;not null" json:"address_id"`
	Address     *Address          `gorm:"foreignKey:AddressID" json:"address,omitempty"`
	Currency    string            `gorm:"type:varchar(10);not null" json:"currency"`
	Subtotal    decimal.Decimal   `gorm:"type:decimal(20,2);not null" json:"subtotal"`
	Discount    decimal.Decimal   `gorm:"type:decimal(20,2);not null" json:"discount"`
	Shipping    decimal.Decimal   `gorm:"type:decimal(20,2);not null" json:"shipping"`
	Tax         decimal.Decimal   `gorm:"type:decimal(20,2);not null" json:"tax"`
	Total       decimal.Decimal   `gorm:"type:decimal(20,2);not null" json:"total"`
	Status      InvoiceStatus     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	CouponID    *uuid.UUID        `gorm:"type:uuid;index" json:"coupon_id,omitempty"`
	CouponCode  string            `gorm:"type:varchar(64)" json:"coupon_code,omitempty"`
	Metadata    datatypes.JSONMap `json:"metadata"`
	PaidAt      *time.Time        `json:"paid_at,omitempty"`
	CancelledAt *time.Time        `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt    `gorm:"index" json:"-"`
	Items       []InvoiceItem     `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE" json:"items"`
}

func (i *Invoice) BeforeCreate(*gorm.DB) error {
	assignID(&i.ID)
	return nil
}

// InvoiceItem snapshots the product at purchase time so later catalog edits do not leak into the invoice.
type InvoiceItem struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	InvoiceID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"invoice_id"`
	ProductID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"product_id"`
	Name        string          `gorm:"type:varchar(255);not null" json:"name"`
	Description string          `gorm:"type:text" json:"description,omitempty"`
	SKU         string          `gorm:"type:varchar(64)" json:"sku,omitempty"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"unit_price"`
	Quantity    int             `gorm:"not null" json:"quantity"`
	Total       decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"total"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (i *InvoiceItem) BeforeCreate(*gorm.DB) error {
	assignID(&i.ID)
	return nil
}

// NewInvoiceItem snapshots product into a line of the given quantity.
func NewInvoiceItem(product *Product, quantity int) InvoiceItem {
	unit := RoundMoney(product.Price)
	return InvoiceItem{
		ProductID:   product.ID,
		Name:        product.Name,
		Description: product.Description,
		SKU:         product.SKU,
		UnitPrice:   unit,
		Quantity:    quantity,
		Total:       RoundMoney(unit.Mul(decimal.NewFromInt(int64(quantity)))),
	}
}

// ItemsTotal sums the line totals.
func (i *Invoice) ItemsTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range i.Items {
		sum = sum.Add(item.Total)
	}
	return sum
}

// ExpectedTotal is round(subtotal - discount + tax + shipping, 2), floored at zero.
func (i *Invoice) ExpectedTotal() decimal.Decimal {
	return RoundMoney(i.Subtotal.Sub(i.Discount).Add(i.Tax).Add(i.Shipping))
}

// Ref returns the tagged reference used by payments to point at this invoice.
func (i *Invoice) Ref() Ref {
	return Ref{Kind: RefInvoice, ID: i.ID}
}
