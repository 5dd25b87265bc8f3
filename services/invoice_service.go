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

type InvoiceListResponse struct {
	Invoices []models.Invoice `json:"invoices"`
	Meta     MetaData         `json:"meta"`
}

type MetaData struct {
	Page          int   `json:"page"`
	Limit         int   `json:"limit"`
	TotalInvoices int64 `json:"total_invoices"`
	TotalPages    int64 `json:"total_pages"`
	HasMore       bool  `json:"has_more"`
}

type InvoiceDetail struct {
	Invoice  *models.Invoice  `json:"invoice"`
	Payments []models.Payment `json:"payments"`
}

// InvoiceService exposes a customer's invoices and lets them cancel unpaid ones.
type InvoiceService interface {
	ListInvoices(ctx context.Context, userID uuid.UUID, page, limit int) (*InvoiceListResponse, *ServiceError)
	GetInvoice(ctx context.Context, userID, invoiceID uuid.UUID) (*InvoiceDetail, *ServiceError)
	CancelInvoice(ctx context.Context, userID, invoiceID uuid.UUID) (*models.Invoice, *ServiceError)
}

type invoiceServiceImpl struct {
	uow        *repository.UnitOfWork
	allocation AllocationService
	events     *InvoiceEvents
	logger     *zap.Logger
}

func NewInvoiceService(uow *repository.UnitOfWork, allocation AllocationService, events *InvoiceEvents, logger *zap.Logger) InvoiceService {
	return &invoiceServiceImpl{
		uow:        uow,
		allocation: allocation,
		events:     events,
		logger:     logger,
	}
}

func (s *invoiceServiceImpl) ListInvoices(ctx context.Context, userID uuid.UUID, page, limit int) (*InvoiceListResponse, *ServiceError) {
	var invoices []models.Invoice
	var total int64
	err := s.uow.Read(ctx, func(tx *repository.Tx) error {
		var err error
		invoices, total, err = tx.Invoices.FindByUserID(ctx, userID, page, limit)
		return err
	})
	if err != nil {
		s.logger.Error("Failed to fetch invoices", zap.String("user_id", userID.String()), zap.Error(err))
		return nil, internalError("Failed to fetch invoices", err)
	}

	return &InvoiceListResponse{
		Invoices: invoices,
		Meta: MetaData{
			Page:          page,
			Limit:         limit,
			TotalInvoices: total,
			TotalPages:    calculateTotalPages(total, limit),
			HasMore:       total > int64(page*limit),
		},
	}, nil
}

func (s *invoiceServiceImpl) GetInvoice(ctx context.Context, userID, invoiceID uuid.UUID) (*InvoiceDetail, *ServiceError) {
	detail := &InvoiceDetail{}
	err := s.uow.Read(ctx, func(tx *repository.Tx) error {
		invoice, err := tx.Invoices.FindByIDAndUserID(ctx, invoiceID, userID)
		if err != nil {
			return err
		}
		payments, err := tx.Payments.ListByInvoiceID(ctx, invoiceID)
		if err != nil {
			return err
		}
		detail.Invoice = invoice
		detail.Payments = payments
		return nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFoundError("Invoice not found")
	}
	if err != nil {
		s.logger.Error("Failed to fetch invoice", zap.String("invoice_id", invoiceID.String()), zap.Error(err))
		return nil, internalError("Failed to fetch invoice", err)
	}
	return detail, nil
}

// CancelInvoice cancels an invoice that has not been paid, failing any attempt still in
// flight and giving its stock and coupon usage back.
func (s *invoiceServiceImpl) CancelInvoice(ctx context.Context, userID, invoiceID uuid.UUID) (*models.Invoice, *ServiceError) {
	var invoice *models.Invoice
	changed := false
	err := s.uow.Do(ctx, func(tx *repository.Tx) error {
		pending, err := lockPendingPayments(ctx, tx, invoiceID)
		if err != nil {
			return err
		}

		inv, err := tx.LockInvoice(ctx, invoiceID)
		if errors.Is(err, repository.ErrNotFound) || (err == nil && inv.UserID != userID) {
			return notFoundError("Invoice not found")
		}
		if err != nil {
			return err
		}

		if inv.Status == models.InvoiceStatusCancelled {
			invoice = inv
			return nil
		}
		if !customerCancellable[inv.Status] || !models.CanTransition(inv.Status, models.InvoiceStatusCancelled) {
			return conflictError(ReasonInvalidTransition, fmt.Sprintf("Invoice in status %s cannot be cancelled", inv.Status))
		}

		now := time.Now().UTC()
		for _, p := range pending {
			p.MarkFailed(now, "invoice_cancelled")
			if err := tx.Payments.Update(ctx, p); err != nil {
				return fmt.Errorf("fail payment %s: %w", p.ID, err)
			}
		}

		if _, err := s.allocation.ReleaseLocked(ctx, tx, inv, releaseReasonCancelled); err != nil {
			return err
		}

		inv.Status = models.InvoiceStatusCancelled
		inv.CancelledAt = &now
		if err := tx.Invoices.Update(ctx, inv); err != nil {
			return fmt.Errorf("update invoice: %w", err)
		}
		invoice = inv
		changed = true
		return nil
	})
	if err != nil {
		return nil, asServiceError(err, "Failed to cancel invoice")
	}

	if changed {
		s.logger.Info("Invoice cancelled", zap.String("invoice_id", invoice.ID.String()))
		s.events.Publish(ctx, EventInvoiceCancelled, invoice, nil, releaseReasonCancelled)
	}
	return invoice, nil
}

// customerCancellable narrows the state machine to what a customer may cancel: nothing that
// has been paid for.
var customerCancellable = map[models.InvoiceStatus]bool{
	models.InvoiceStatusPending:        true,
	models.InvoiceStatusPaymentPending: true,
	models.InvoiceStatusPaymentFailed:  true,
}

func calculateTotalPages(total int64, limit int) int64 {
	if limit == 0 {
		return 0
	}
	return (total + int64(limit) - 1) / int64(limit)
}
