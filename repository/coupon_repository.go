package repository

import (
	"context"
	"fmt"

	"fulfillment-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CouponRepository defines the interface for coupon data access.
type CouponRepository interface {
	Create(ctx context.Context, coupon *models.Coupon) error
	FindByCode(ctx context.Context, code string) (*models.Coupon, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error)
	LockByCode(ctx context.Context, code string) (*models.Coupon, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error)
	AdjustUsedCount(ctx context.Context, id uuid.UUID, delta int) error
}

// GormCouponRepository implements CouponRepository using GORM.
type GormCouponRepository struct {
	db *gorm.DB
}

// NewGormCouponRepository creates a new GormCouponRepository.
func NewGormCouponRepository(db *gorm.DB) CouponRepository {
	return &GormCouponRepository{db: db}
}

// Create inserts a new coupon into the database.
func (r *GormCouponRepository) Create(ctx context.Context, coupon *models.Coupon) error {
	return r.db.WithContext(ctx).Create(coupon).Error
}

// FindByCode retrieves a coupon by its normalized code, whatever its status.
func (r *GormCouponRepository) FindByCode(ctx context.Context, code string) (*models.Coupon, error) {
	return r.first(r.db.WithContext(ctx).Where("code = ?", models.NormalizeCouponCode(code)))
}

func (r *GormCouponRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *GormCouponRepository) LockByCode(ctx context.Context, code string) (*models.Coupon, error) {
	return r.first(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("code = ?", models.NormalizeCouponCode(code)))
}

func (r *GormCouponRepository) LockByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	return r.first(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id))
}

// AdjustUsedCount atomically shifts used_count by delta, never below zero.
func (r *GormCouponRepository) AdjustUsedCount(ctx context.Context, id uuid.UUID, delta int) error {
	result := r.db.WithContext(ctx).
		Model(&models.Coupon{}).
		Where("id = ?", id).
		UpdateColumn("used_count", gorm.Expr("CASE WHEN used_count + ? < 0 THEN 0 ELSE used_count + ? END", delta, delta))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormCouponRepository) first(query *gorm.DB) (*models.Coupon, error) {
	var coupon models.Coupon
	if err := query.First(&coupon).Error; err != nil {
		return nil, translate(err)
	}
	return &coupon, nil
}

// CouponUsageRepository stores one redemption row per (coupon, invoice).
type CouponUsageRepository interface {
	Create(ctx context.Context, usage *models.CouponUsage) error
	FindByCouponAndInvoice(ctx context.Context, couponID, invoiceID uuid.UUID) (*models.CouponUsage, error)
	CountByCoupon(ctx context.Context, couponID uuid.UUID) (int64, error)
	CountByCouponAndUser(ctx context.Context, couponID, userID uuid.UUID) (int64, error)
	DeleteByInvoiceID(ctx context.Context, invoiceID uuid.UUID) ([]models.CouponUsage, error)
}

type GormCouponUsageRepository struct {
	db *gorm.DB
}

func NewGormCouponUsageRepository(db *gorm.DB) CouponUsageRepository {
	return &GormCouponUsageRepository{db: db}
}

func (r *GormCouponUsageRepository) Create(ctx context.Context, usage *models.CouponUsage) error {
	return r.db.WithContext(ctx).Create(usage).Error
}

func (r *GormCouponUsageRepository) FindByCouponAndInvoice(ctx context.Context, couponID, invoiceID uuid.UUID) (*models.CouponUsage, error) {
	var usage models.CouponUsage
	if err := r.db.WithContext(ctx).
		Where("coupon_id = ? AND invoice_id = ?", couponID, invoiceID).
		First(&usage).Error; err != nil {
		return nil, translate(err)
	}
	return &usage, nil
}

func (r *GormCouponUsageRepository) CountByCoupon(ctx context.Context, couponID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CouponUsage{}).
		Where("coupon_id = ?", couponID).
		Count(&count).Error
	return count, err
}

func (r *GormCouponUsageRepository) CountByCouponAndUser(ctx context.Context, couponID, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CouponUsage{}).
		Where("coupon_id = ? AND user_id = ?", couponID, userID).
		Count(&count).Error
	return count, err
}

// DeleteByInvoiceID removes every usage row of the invoice and returns the rows that were removed.
func (r *GormCouponUsageRepository) DeleteByInvoiceID(ctx context.Context, invoiceID uuid.UUID) ([]models.CouponUsage, error) {
	var usages []models.CouponUsage
	if err := r.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("id").
		Find(&usages).Error; err != nil {
		return nil, err
	}
	if len(usages) == 0 {
		return usages, nil
	}

	ids := make([]uuid.UUID, 0, len(usages))
	for _, u := range usages {
		ids = append(ids, u.ID)
	}
	result := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.CouponUsage{})
	if result.Error != nil {
		return nil, result.Error
	}
	if int(result.RowsAffected) != len(usages) {
		return nil, fmt.Errorf("coupon usage delete for invoice %s: found %d rows, removed %d", invoiceID, len(usages), result.RowsAffected)
	}
	return usages, nil
}
