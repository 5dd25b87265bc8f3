package repository

import (
	"context"

	"fulfillment-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InvoiceRepository defines the interface for invoice data access
type InvoiceRepository interface {
	Create(ctx context.Context, invoice *models.Invoice) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	FindByIDAndUserID(ctx context.Context, id, userID uuid.UUID) (*models.Invoice, error)
	FindByUserID(ctx context.Context, userID uuid.UUID, page, limit int) ([]models.Invoice, int64, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	LockItems(ctx context.Context, invoiceID uuid.UUID) ([]models.InvoiceItem, error)
	Update(ctx context.Context, invoice *models.Invoice) error
}

// GormInvoiceRepository implements InvoiceRepository using GORM
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository creates a new instance of GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) InvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

// Create inserts the invoice together with its items. The address is referenced, never written.
func (r *GormInvoiceRepository) Create(ctx context.Context, invoice *models.Invoice) error {
	return r.db.WithContext(ctx).Omit("Address").Create(invoice).Error
}

func (r *GormInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Address").
		Where("id = ?", id).
		First(&invoice).Error; err != nil {
		return nil, translate(err)
	}
	return &invoice, nil
}

// FindByIDAndUserID retrieves a specific invoice owned by a user
func (r *GormInvoiceRepository) FindByIDAndUserID(ctx context.Context, id, userID uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Address").
		Where("id = ? AND user_id = ?", id, userID).
		First(&invoice).Error; err != nil {
		return nil, translate(err)
	}
	return &invoice, nil
}

// FindByUserID retrieves invoices for a specific user with pagination
func (r *GormInvoiceRepository) FindByUserID(ctx context.Context, userID uuid.UUID, page, limit int) ([]models.Invoice, int64, error) {
	var invoices []models.Invoice
	var total int64

	query := r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("user_id = ?", userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.
		Preload("Items").
		Offset(offset).
		Limit(limit).
		Order("created_at DESC").
		Find(&invoices).Error; err != nil {
		return nil, 0, err
	}

	return invoices, total, nil
}

// LockByID selects the invoice row FOR UPDATE. Items are not loaded.
func (r *GormInvoiceRepository) LockByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&invoice).Error; err != nil {
		return nil, translate(err)
	}
	return &invoice, nil
}

// LockItems selects every item of the invoice FOR UPDATE, ordered by id.
func (r *GormInvoiceRepository) LockItems(ctx context.Context, invoiceID uuid.UUID) ([]models.InvoiceItem, error) {
	var items []models.InvoiceItem
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("invoice_id = ?", invoiceID).
		Order("id").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// Update saves the invoice columns without touching items or the address.
func (r *GormInvoiceRepository) Update(ctx context.Context, invoice *models.Invoice) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(invoice).Error
}
