package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CouponType represents the type of discount a coupon provides.
type CouponType string

const (
	CouponTypePercent CouponType = "percent"
	CouponTypeFixed   CouponType = "fixed"
)

type CouponStatus string

const (
	CouponStatusActive   CouponStatus = "active"
	CouponStatusInactive CouponStatus = "inactive"
)

// Coupon represents a redeemable discount code. UsedCount always equals the number of
// CouponUsage rows pointing at the coupon.
type Coupon struct {
	ID             uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	Code           string              `gorm:"type:varchar(64);uniqueIndex;not null" json:"code"`
	Type           CouponType          `gorm:"type:varchar(20);not null" json:"type"`
	Value          decimal.Decimal     `gorm:"type:decimal(20,2);not null" json:"value"`
	MinSubtotal    decimal.NullDecimal `gorm:"type:decimal(20,2)" json:"min_subtotal"`
	MaxDiscount    decimal.NullDecimal `gorm:"type:decimal(20,2)" json:"max_discount"`
	Currency       string              `gorm:"type:varchar(10)" json:"currency,omitempty"` // empty = any currency
	StartsAt       *time.Time          `json:"starts_at,omitempty"`
	EndsAt         *time.Time          `json:"ends_at,omitempty"`
	MaxUses        *int                `json:"max_uses,omitempty"`
	MaxUsesPerUser *int                `json:"max_uses_per_user,omitempty"`
	UsedCount      int                 `gorm:"not null;default:0" json:"used_count"`
	Status         CouponStatus        `gorm:"type:varchar(20);not null;default:'active'" json:"status"`
	CreatedAt      time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt      `gorm:"index" json:"-"`
}

func (c *Coupon) BeforeCreate(*gorm.DB) error {
	assignID(&c.ID)
	c.Code = NormalizeCouponCode(c.Code)
	return nil
}

// NormalizeCouponCode trims and upper-cases a code.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsActive reports whether the coupon is switched on and now falls inside its validity window.
func (c *Coupon) IsActive(now time.Time) bool {
	if c.Status != CouponStatusActive {
		return false
	}
	if c.StartsAt != nil && now.Before(*c.StartsAt) {
		return false
	}
	if c.EndsAt != nil && now.After(*c.EndsAt) {
		return false
	}
	return true
}

// CalculateDiscount returns the discount granted on subtotal, capped by MaxDiscount and by
// the subtotal itself, rounded to two decimals.
func (c *Coupon) CalculateDiscount(subtotal decimal.Decimal) decimal.Decimal {
	if !subtotal.IsPositive() {
		return decimal.Zero
	}

	var discount decimal.Decimal
	switch c.Type {
	case CouponTypePercent:
		discount = subtotal.Mul(c.Value).Div(decimal.NewFromInt(100))
	case CouponTypeFixed:
		discount = c.Value
	default:
		return decimal.Zero
	}

	if c.MaxDiscount.Valid && discount.GreaterThan(c.MaxDiscount.Decimal) {
		discount = c.MaxDiscount.Decimal
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	return RoundMoney(discount)
}

// CouponUsage records one redemption of a coupon by an invoice. Exactly one row exists per
// (coupon, invoice) pair while the redemption is counted.
type CouponUsage struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CouponID       uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_coupon_usage_invoice" json:"coupon_id"`
	InvoiceID      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_coupon_usage_invoice;index" json:"invoice_id"`
	UserID         uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"discount_amount"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (u *CouponUsage) BeforeCreate(*gorm.DB) error {
	assignID(&u.ID)
	return nil
}
