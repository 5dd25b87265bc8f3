package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fulfillment-service/models"
	"fulfillment-service/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CouponRequest is what a coupon is validated against.
type CouponRequest struct {
	Code     string
	Subtotal decimal.Decimal
	Currency string
	UserID   uuid.UUID
}

// CouponEngine validates coupons and keeps CouponUsage rows and used_count in step.
type CouponEngine interface {
	// ResolveValidCoupon runs the checks in a fixed order and reports the first failure as a
	// *ServiceError on field coupon_code. With lock set the coupon row is taken FOR UPDATE.
	ResolveValidCoupon(ctx context.Context, tx *repository.Tx, req CouponRequest, lock bool) (*models.Coupon, error)
	CalculateDiscount(coupon *models.Coupon, subtotal decimal.Decimal) decimal.Decimal
	// ReserveCouponUsage records the redemption once per (coupon, invoice). It reports whether a row was added.
	ReserveCouponUsage(ctx context.Context, tx *repository.Tx, coupon *models.Coupon, invoice *models.Invoice, discount decimal.Decimal) (bool, error)
	// ReleaseCouponUsage removes the invoice's redemptions and returns how many were removed.
	ReleaseCouponUsage(ctx context.Context, tx *repository.Tx, invoiceID uuid.UUID) (int, error)
}

const couponField = "coupon_code"

type couponEngineImpl struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewCouponEngine(logger *zap.Logger) CouponEngine {
	return &couponEngineImpl{logger: logger, now: time.Now}
}

func (e *couponEngineImpl) ResolveValidCoupon(ctx context.Context, tx *repository.Tx, req CouponRequest, lock bool) (*models.Coupon, error) {
	code := models.NormalizeCouponCode(req.Code)
	if code == "" {
		return nil, validationError(couponField, ReasonCouponCodeRequired, "Coupon code is required")
	}

	var coupon *models.Coupon
	var err error
	if lock {
		coupon, err = tx.LockCoupon(ctx, code)
	} else {
		coupon, err = tx.Coupons.FindByCode(ctx, code)
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil, validationError(couponField, ReasonCouponNotFound, "Coupon not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load coupon %s: %w", code, err)
	}

	if !coupon.IsActive(e.now()) {
		return nil, validationError(couponField, ReasonCouponInactive, "Coupon is not active")
	}

	if coupon.MinSubtotal.Valid && req.Subtotal.LessThan(coupon.MinSubtotal.Decimal) {
		return nil, validationError(couponField, ReasonCouponMinSubtotal,
			fmt.Sprintf("Minimum subtotal of %s required", coupon.MinSubtotal.Decimal.StringFixed(2)))
	}

	if coupon.MaxUses != nil && coupon.UsedCount >= *coupon.MaxUses {
		return nil, validationError(couponField, ReasonCouponUsageLimit, "Coupon usage limit reached")
	}

	if coupon.Currency != "" && !strings.EqualFold(coupon.Currency, req.Currency) {
		return nil, validationError(couponField, ReasonCouponCurrencyMismatch,
			fmt.Sprintf("Coupon is only valid for %s", strings.ToUpper(coupon.Currency)))
	}

	if coupon.MaxUsesPerUser != nil {
		used, err := tx.CouponUsages.CountByCouponAndUser(ctx, coupon.ID, req.UserID)
		if err != nil {
			return nil, fmt.Errorf("count coupon usage: %w", err)
		}
		if used >= int64(*coupon.MaxUsesPerUser) {
			return nil, validationError(couponField, ReasonCouponUserLimit, "Coupon already used the maximum number of times")
		}
	}

	return coupon, nil
}

func (e *couponEngineImpl) CalculateDiscount(coupon *models.Coupon, subtotal decimal.Decimal) decimal.Decimal {
	if coupon == nil {
		return decimal.Zero
	}
	return coupon.CalculateDiscount(subtotal)
}

func (e *couponEngineImpl) ReserveCouponUsage(ctx context.Context, tx *repository.Tx, coupon *models.Coupon, invoice *models.Invoice, discount decimal.Decimal) (bool, error) {
	_, err := tx.CouponUsages.FindByCouponAndInvoice(ctx, coupon.ID, invoice.ID)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return false, fmt.Errorf("find coupon usage: %w", err)
	}

	usage := &models.CouponUsage{
		CouponID:       coupon.ID,
		InvoiceID:      invoice.ID,
		UserID:         invoice.UserID,
		DiscountAmount: models.RoundMoney(discount),
	}
	if err := tx.CouponUsages.Create(ctx, usage); err != nil {
		return false, fmt.Errorf("create coupon usage: %w", err)
	}
	if err := tx.Coupons.AdjustUsedCount(ctx, coupon.ID, 1); err != nil {
		return false, fmt.Errorf("increment coupon usage: %w", err)
	}

	e.logger.Info("Coupon usage reserved",
		zap.String("coupon_code", coupon.Code),
		zap.String("invoice_id", invoice.ID.String()),
	)
	return true, nil
}

func (e *couponEngineImpl) ReleaseCouponUsage(ctx context.Context, tx *repository.Tx, invoiceID uuid.UUID) (int, error) {
	removed, err := tx.CouponUsages.DeleteByInvoiceID(ctx, invoiceID)
	if err != nil {
		return 0, fmt.Errorf("delete coupon usage: %w", err)
	}
	if len(removed) == 0 {
		return 0, nil
	}

	perCoupon := make(map[uuid.UUID]int)
	for _, u := range removed {
		perCoupon[u.CouponID]++
	}
	couponIDs := make([]uuid.UUID, 0, len(perCoupon))
	for id := range perCoupon {
		couponIDs = append(couponIDs, id)
	}
	sortIDs(couponIDs)

	for _, id := range couponIDs {
		if _, err := tx.LockCouponByID(ctx, id); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return 0, fmt.Errorf("lock coupon %s: %w", id, err)
		}
		if err := tx.Coupons.AdjustUsedCount(ctx, id, -perCoupon[id]); err != nil {
			return 0, fmt.Errorf("decrement coupon usage: %w", err)
		}
	}

	e.logger.Info("Coupon usage released",
		zap.String("invoice_id", invoiceID.String()),
		zap.Int("rows", len(removed)),
	)
	return len(removed), nil
}
