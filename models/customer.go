package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the minimal view of an account the fulfillment core needs.
type User struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Email     string         `gorm:"type:varchar(255);uniqueIndex" json:"email"`
	Name      string         `gorm:"type:varchar(255)" json:"name"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	assignID(&u.ID)
	return nil
}

// Address is a shipping address owned by a user.
type Address struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	RecipientName string         `gorm:"type:varchar(255)" json:"recipient_name"`
	Phone         string         `gorm:"type:varchar(32)" json:"phone,omitempty"`
	Line1         string         `gorm:"type:varchar(255);not null" json:"line1"`
	Line2         string         `gorm:"type:varchar(255)" json:"line2,omitempty"`
	City          string         `gorm:"type:varchar(128)" json:"city"`
	PostalCode    string         `gorm:"type:varchar(32)" json:"postal_code"`
	Country       string         `gorm:"type:varchar(2)" json:"country"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

func (a *Address) BeforeCreate(*gorm.DB) error {
	assignID(&a.ID)
	return nil
}
