package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PaymentStatus represents the state of a single payment attempt.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// IsTerminal reports whether the attempt has been settled one way or the other.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusPaid || s == PaymentStatusFailed
}

// Payment is one attempt to settle an invoice through a gateway. Attempts are never reused.
type Payment struct {
	ID            uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	InvoiceID     uuid.UUID         `gorm:"type:uuid;not null;index" json:"invoice_id"`
	Payable       Ref               `gorm:"embedded;embeddedPrefix:payable_" json:"payable"`
	UserID        uuid.UUID         `gorm:"type:uuid;not null;index" json:"user_id"`
	Provider      string            `gorm:"type:varchar(32);not null" json:"provider"`
	Amount        decimal.Decimal   `gorm:"type:decimal(20,2);not null" json:"amount"`
	Currency      string            `gorm:"type:varchar(10);not null" json:"currency"`
	Status        PaymentStatus     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Authority     string            `gorm:"type:varchar(128);index" json:"authority,omitempty"`
	CallbackToken string            `gorm:"type:varchar(64);uniqueIndex" json:"-"`
	RedirectURL   string            `gorm:"type:text" json:"redirect_url,omitempty"`
	Reference     string            `gorm:"type:varchar(128)" json:"reference,omitempty"`
	FailureReason string            `gorm:"type:text" json:"failure_reason,omitempty"`
	Meta          datatypes.JSONMap `json:"meta,omitempty"`
	PaidAt        *time.Time        `json:"paid_at,omitempty"`
	FailedAt      *time.Time        `json:"failed_at,omitempty"`
	CreatedAt     time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}

// MarkPaid settles the attempt successfully.
func (p *Payment) MarkPaid(now time.Time, reference string) {
	p.Status = PaymentStatusPaid
	p.Reference = reference
	p.FailureReason = ""
	p.PaidAt = &now
}

// MarkFailed settles the attempt as failed with a machine-readable reason.
func (p *Payment) MarkFailed(now time.Time, reason string) {
	p.Status = PaymentStatusFailed
	p.FailureReason = reason
	p.FailedAt = &now
}
