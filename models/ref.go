package models

import (
	"fmt"

	"github.com/google/uuid"
)

// RefKind names the entity type a Ref points at.
type RefKind string

const (
	RefInvoice RefKind = "invoice"
	RefProduct RefKind = "product"
	RefCoupon  RefKind = "coupon"
)

// Ref is a typed pointer to another row, stored as a (kind, id) column pair.
type Ref struct {
	Kind RefKind   `gorm:"type:varchar(32)" json:"kind"`
	ID   uuid.UUID `gorm:"type:uuid" json:"id"`
}

func (r Ref) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.ID)
}

// IsZero reports whether the reference is unset.
func (r Ref) IsZero() bool {
	return r.Kind == "" && r.ID == uuid.Nil
}
