package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fulfillment-service/models"
	"fulfillment-service/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AllocationService gives an invoice's stock and coupon usage back when a payment fails and
// takes them again when the customer retries. Both directions are idempotent through the
// allocation record kept on the invoice.
type AllocationService interface {
	ReleaseForFailedPayment(ctx context.Context, invoiceID uuid.UUID, reason string) (bool, error)
	ReserveForRetry(ctx context.Context, invoiceID uuid.UUID) (bool, error)

	// ReleaseLocked and ReserveLocked run inside a caller's transaction on an invoice the caller has locked.
	ReleaseLocked(ctx context.Context, tx *repository.Tx, invoice *models.Invoice, reason string) (bool, error)
	ReserveLocked(ctx context.Context, tx *repository.Tx, invoice *models.Invoice) (bool, error)
}

type allocationServiceImpl struct {
	uow     *repository.UnitOfWork
	ledger  InventoryLedger
	coupons CouponEngine
	logger  *zap.Logger
}

func NewAllocationService(uow *repository.UnitOfWork, ledger InventoryLedger, coupons CouponEngine, logger *zap.Logger) AllocationService {
	return &allocationServiceImpl{
		uow:     uow,
		ledger:  ledger,
		coupons: coupons,
		logger:  logger,
	}
}

func (s *allocationServiceImpl) ReleaseForFailedPayment(ctx context.Context, invoiceID uuid.UUID, reason string) (bool, error) {
	var changed bool
	err := s.uow.Do(ctx, func(tx *repository.Tx) error {
		invoice, err := tx.LockInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		changed, err = s.ReleaseLocked(ctx, tx, invoice, reason)
		return err
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

func (s *allocationServiceImpl) ReserveForRetry(ctx context.Context, invoiceID uuid.UUID) (bool, error) {
	var changed bool
	err := s.uow.Do(ctx, func(tx *repository.Tx) error {
		invoice, err := tx.LockInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		changed, err = s.ReserveLocked(ctx, tx, invoice)
		return err
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

func (s *allocationServiceImpl) ReleaseLocked(ctx context.Context, tx *repository.Tx, invoice *models.Invoice, reason string) (bool, error) {
	state := invoice.Allocation()
	if state.IsReleased() {
		return false, nil
	}
	if state.ReservedAt == nil && state.ReReservedAt == nil {
		s.logger.Warn("Release requested for invoice without reservation", zap.String("invoice_id", invoice.ID.String()))
		return false, nil
	}

	items, err := tx.LockItems(ctx, invoice.ID)
	if err != nil {
		return false, fmt.Errorf("lock items: %w", err)
	}
	if err := s.ledger.Release(ctx, tx, LinesFromItems(items)); err != nil {
		return false, err
	}
	removed, err := s.coupons.ReleaseCouponUsage(ctx, tx, invoice.ID)
	if err != nil {
		return false, err
	}

	invoice.MarkReleased(time.Now().UTC(), reason)
	if err := tx.Invoices.Update(ctx, invoice); err != nil {
		return false, fmt.Errorf("update invoice: %w", err)
	}

	s.logger.Info("Allocation released",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("reason", reason),
		zap.Int("items", len(items)),
		zap.Int("coupon_usages", removed),
	)
	return true, nil
}

func (s *allocationServiceImpl) ReserveLocked(ctx context.Context, tx *repository.Tx, invoice *models.Invoice) (bool, error) {
	if !invoice.Allocation().IsReleased() {
		return false, nil
	}

	if _, err := tx.LockUser(ctx, invoice.UserID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return false, fmt.Errorf("lock user: %w", err)
	}

	items, err := tx.LockItems(ctx, invoice.ID)
	if err != nil {
		return false, fmt.Errorf("lock items: %w", err)
	}
	if err := s.ledger.Reserve(ctx, tx, LinesFromItems(items)); err != nil {
		return false, stockValidationError(err)
	}

	if invoice.CouponID != nil {
		coupon, err := s.coupons.ResolveValidCoupon(ctx, tx, CouponRequest{
			Code:     invoice.CouponCode,
			Subtotal: invoice.Subtotal,
			Currency: invoice.Currency,
			UserID:   invoice.UserID,
		}, true)
		if err != nil {
			return false, err
		}
		if coupon.ID != *invoice.CouponID {
			return false, validationError(couponField, ReasonCouponNotFound, "Coupon applied to this invoice no longer exists")
		}
		// The discount recorded at checkout stays; only the redemption is re-taken.
		if _, err := s.coupons.ReserveCouponUsage(ctx, tx, coupon, invoice, invoice.Discount); err != nil {
			return false, err
		}
	}

	invoice.MarkReReserved(time.Now().UTC())
	if err := tx.Invoices.Update(ctx, invoice); err != nil {
		return false, fmt.Errorf("update invoice: %w", err)
	}

	s.logger.Info("Allocation re-reserved", zap.String("invoice_id", invoice.ID.String()))
	return true, nil
}
