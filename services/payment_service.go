package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"fulfillment-service/models"
	"fulfillment-service/providers"
	"fulfillment-service/repository"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"go.uber.org/zap"
)

const (
	releaseReasonPaymentFailed = "payment_failed"
	releaseReasonCancelled     = "cancelled"
)

type StartPaymentRequest struct {
	Provider string `json:"provider"`
}

type PaymentStart struct {
	Payment     *models.Payment `json:"payment"`
	RedirectURL string          `json:"redirect_url"`
}

// CallbackRequest carries a returning redirect or webhook. Only Token is trusted before the
// payment it names has been loaded and compared.
type CallbackRequest struct {
	PaymentID string `form:"payment_id" json:"payment_id"`
	Token     string `form:"token" json:"token"`
	Authority string `form:"authority" json:"authority"`
	Status    string `form:"status" json:"status"`
}

type CallbackResult struct {
	PaymentID     uuid.UUID            `json:"payment_id"`
	InvoiceID     uuid.UUID            `json:"invoice_id"`
	PaymentStatus models.PaymentStatus `json:"payment_status"`
	InvoiceStatus models.InvoiceStatus `json:"invoice_status"`
	Reference     string               `json:"reference,omitempty"`
	Reason        string               `json:"reason,omitempty"`
	Duplicate     bool                 `json:"duplicate"`
}

// PaymentService starts payment attempts and settles them from gateway callbacks.
type PaymentService interface {
	StartPayment(ctx context.Context, userID, invoiceID uuid.UUID, req *StartPaymentRequest) (*PaymentStart, *ServiceError)
	HandleCallback(ctx context.Context, req *CallbackRequest) (*CallbackResult, *ServiceError)
}

type paymentServiceImpl struct {
	uow        *repository.UnitOfWork
	registry   *providers.Registry
	resolver   *repository.RefResolver
	allocation AllocationService
	guard      CallbackGuard
	events     *InvoiceEvents
	logger     *zap.Logger
}

func NewPaymentService(
	uow *repository.UnitOfWork,
	registry *providers.Registry,
	resolver *repository.RefResolver,
	allocation AllocationService,
	guard CallbackGuard,
	events *InvoiceEvents,
	logger *zap.Logger,
) PaymentService {
	if guard == nil {
		guard = NoopCallbackGuard()
	}
	return &paymentServiceImpl{
		uow:        uow,
		registry:   registry,
		resolver:   resolver,
		allocation: allocation,
		guard:      guard,
		events:     events,
		logger:     logger,
	}
}

func (s *paymentServiceImpl) StartPayment(ctx context.Context, userID, invoiceID uuid.UUID, req *StartPaymentRequest) (*PaymentStart, *ServiceError) {
	gateway, err := s.registry.Resolve(req.Provider)
	if err != nil {
		return nil, providerError(err)
	}

	var payment *models.Payment
	var invoice *models.Invoice
	err = s.uow.Do(ctx, func(tx *repository.Tx) error {
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
		// A concurrent start may have committed an attempt between the listing above and the
		// invoice lock; that attempt is not ours to supersede.
		others, err := otherPendingPayments(ctx, tx, inv.ID, pending...)
		if err != nil {
			return err
		}
		if others > 0 {
			return conflictError(ReasonPaymentInProgress, "Another payment attempt for this invoice is in progress")
		}

		switch inv.Status {
		case models.InvoiceStatusPending, models.InvoiceStatusPaymentPending:
		case models.InvoiceStatusPaymentFailed:
			if _, err := s.allocation.ReserveLocked(ctx, tx, inv); err != nil {
				return err
			}
		default:
			return conflictError(ReasonInvalidTransition, fmt.Sprintf("Invoice in status %s cannot be paid", inv.Status))
		}
		if !models.CanTransition(inv.Status, models.InvoiceStatusPaymentPending) {
			return conflictError(ReasonInvalidTransition, fmt.Sprintf("Invoice in status %s cannot be paid", inv.Status))
		}

		now := time.Now().UTC()
		for _, p := range pending {
			p.MarkFailed(now, "superseded")
			if err := tx.Payments.Update(ctx, p); err != nil {
				return fmt.Errorf("supersede payment %s: %w", p.ID, err)
			}
		}

		inv.Status = models.InvoiceStatusPaymentPending
		if err := tx.Invoices.Update(ctx, inv); err != nil {
			return fmt.Errorf("update invoice: %w", err)
		}

		payment = &models.Payment{
			InvoiceID:     inv.ID,
			Payable:       inv.Ref(),
			UserID:        inv.UserID,
			Provider:      gateway.Name(),
			Amount:        inv.Total,
			Currency:      inv.Currency,
			Status:        models.PaymentStatusPending,
			CallbackToken: newCallbackToken(),
		}
		if err := tx.Payments.Create(ctx, payment); err != nil {
			return fmt.Errorf("create payment: %w", err)
		}
		invoice = inv
		return nil
	})
	if err != nil {
		return nil, asServiceError(err, "Failed to start payment")
	}

	result, initErr := gateway.Initiate(ctx, payment, invoice)
	if initErr != nil {
		s.logger.Warn("Payment initiation failed",
			zap.String("payment_id", payment.ID.String()),
			zap.String("provider", payment.Provider),
			zap.Error(initErr),
		)
		if err := s.failAttempt(ctx, payment.ID, "initiate_failed: "+initErr.Error()); err != nil {
			s.logger.Error("Failed to record initiation failure", zap.String("payment_id", payment.ID.String()), zap.Error(err))
		}
		return nil, gatewayError("Payment provider unavailable", initErr)
	}

	err = s.uow.Do(ctx, func(tx *repository.Tx) error {
		p, err := tx.LockPayment(ctx, payment.ID)
		if err != nil {
			return err
		}
		if p.Status == models.PaymentStatusPending {
			p.Authority = result.Authority
			p.RedirectURL = result.RedirectURL
			p.Meta = datatypes.JSONMap(result.Meta)
			if err := tx.Payments.Update(ctx, p); err != nil {
				return fmt.Errorf("update payment: %w", err)
			}
		}
		payment = p
		return nil
	})
	if err != nil {
		return nil, asServiceError(err, "Failed to record payment")
	}

	s.logger.Info("Payment started",
		zap.String("payment_id", payment.ID.String()),
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("provider", payment.Provider),
	)
	return &PaymentStart{Payment: payment, RedirectURL: result.RedirectURL}, nil
}

func (s *paymentServiceImpl) HandleCallback(ctx context.Context, req *CallbackRequest) (*CallbackResult, *ServiceError) {
	paymentID, err := uuid.Parse(strings.TrimSpace(req.PaymentID))
	if err != nil {
		return nil, &ServiceError{StatusCode: http.StatusBadRequest, Field: "payment_id", Reason: ReasonInvalidCallback, Message: "Invalid payment_id"}
	}
	if req.Token == "" {
		return nil, &ServiceError{StatusCode: http.StatusBadRequest, Field: "token", Reason: ReasonInvalidCallback, Message: "Callback token is required"}
	}

	var payment *models.Payment
	var invoice *models.Invoice
	err = s.uow.Read(ctx, func(tx *repository.Tx) error {
		p, err := tx.Payments.FindByID(ctx, paymentID)
		if err != nil {
			return err
		}
		// The token is the only proof the caller came from our redirect; nothing else is read before it matches.
		if subtle.ConstantTimeCompare([]byte(p.CallbackToken), []byte(req.Token)) != 1 {
			return &ServiceError{StatusCode: http.StatusForbidden, Field: "token", Reason: ReasonInvalidCallback, Message: "Invalid callback token"}
		}
		inv, err := s.resolver.ResolveInvoice(ctx, tx, p.Payable)
		if err != nil {
			return err
		}
		payment, invoice = p, inv
		return nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFoundError("Payment not found")
	}
	if err != nil {
		return nil, asServiceError(err, "Failed to load payment")
	}

	if payment.Status.IsTerminal() {
		return callbackResult(payment, invoice, true), nil
	}
	if !s.guard.Acquire(ctx, paymentID, req.Token) {
		return callbackResult(payment, invoice, true), nil
	}

	gateway, err := s.registry.Lookup(payment.Provider)
	if err != nil {
		s.guard.Release(ctx, paymentID, req.Token)
		return nil, internalError("Payment provider no longer registered", err)
	}

	outcome, err := gateway.ResolveCallbackOutcome(ctx, payment, invoice, providers.Callback{
		Authority: req.Authority,
		Status:    req.Status,
	})
	if errors.Is(err, providers.ErrMalformedCallback) {
		s.guard.Release(ctx, paymentID, req.Token)
		return nil, badRequest(ReasonInvalidCallback, "Malformed callback", err)
	}
	if err != nil {
		outcome = &providers.Outcome{Status: providers.OutcomeFailed, Reason: "resolve_error: " + err.Error()}
	}

	duplicate := false
	err = s.uow.Do(ctx, func(tx *repository.Tx) error {
		p, err := tx.LockPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		inv, err := s.resolver.ResolveInvoice(ctx, tx, p.Payable)
		if err != nil {
			return err
		}
		payment, invoice = p, inv
		if p.Status.IsTerminal() {
			duplicate = true
			return nil
		}

		if outcome.Status == providers.OutcomeSuccess {
			return s.settleSuccess(ctx, tx, p, inv, outcome.Reference)
		}
		return s.settleFailure(ctx, tx, p, inv, outcome.Reason)
	})
	if err != nil {
		s.guard.Release(ctx, paymentID, req.Token)
		return nil, asServiceError(err, "Failed to settle payment")
	}

	if !duplicate {
		s.logger.Info("Payment settled",
			zap.String("payment_id", payment.ID.String()),
			zap.String("invoice_id", invoice.ID.String()),
			zap.String("status", string(payment.Status)),
			zap.String("reason", payment.FailureReason),
		)
		if payment.Status == models.PaymentStatusPaid {
			s.events.Publish(ctx, EventInvoicePaid, invoice, payment, "")
		} else {
			s.events.Publish(ctx, EventInvoicePaymentFailed, invoice, payment, payment.FailureReason)
		}
	}
	return callbackResult(payment, invoice, duplicate), nil
}

// settleSuccess marks the attempt paid and the invoice with it. An invoice that already gave its
// allocation back to a sibling attempt's failure takes it again first; when that is no longer
// possible the whole settlement is refused and the attempt stays pending.
func (s *paymentServiceImpl) settleSuccess(ctx context.Context, tx *repository.Tx, p *models.Payment, inv *models.Invoice, reference string) error {
	if inv.Status == models.InvoiceStatusPaymentFailed {
		if _, err := s.allocation.ReserveLocked(ctx, tx, inv); err != nil {
			s.logger.Error("Paid attempt cannot re-take invoice allocation",
				zap.String("payment_id", p.ID.String()),
				zap.String("invoice_id", inv.ID.String()),
				zap.Error(err),
			)
			svcErr := conflictError(ReasonAllocationUnavailable, "Invoice allocation could not be restored for this payment")
			svcErr.Err = err
			return svcErr
		}
		inv.Status = models.InvoiceStatusPaymentPending
	}

	now := time.Now().UTC()
	p.MarkPaid(now, reference)
	if err := tx.Payments.Update(ctx, p); err != nil {
		return fmt.Errorf("update payment: %w", err)
	}

	if inv.Status == models.InvoiceStatusPaid {
		return nil
	}
	if !models.CanTransition(inv.Status, models.InvoiceStatusPaid) {
		s.logger.Warn("Payment succeeded for invoice that cannot be marked paid",
			zap.String("payment_id", p.ID.String()),
			zap.String("invoice_id", inv.ID.String()),
			zap.String("invoice_status", string(inv.Status)),
		)
		return nil
	}
	inv.Status = models.InvoiceStatusPaid
	inv.PaidAt = &now
	if err := tx.Invoices.Update(ctx, inv); err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}
	return nil
}

// settleFailure fails the attempt and, when the invoice was waiting on it, gives its
// allocation back and moves it to payment_failed.
func (s *paymentServiceImpl) settleFailure(ctx context.Context, tx *repository.Tx, p *models.Payment, inv *models.Invoice, reason string) error {
	if reason == "" {
		reason = releaseReasonPaymentFailed
	}
	p.MarkFailed(time.Now().UTC(), reason)
	if err := tx.Payments.Update(ctx, p); err != nil {
		return fmt.Errorf("update payment: %w", err)
	}

	if inv.Status != models.InvoiceStatusPaymentPending {
		return nil
	}
	// The invoice keeps waiting while a sibling attempt can still settle it.
	others, err := otherPendingPayments(ctx, tx, inv.ID, p)
	if err != nil {
		return err
	}
	if others > 0 {
		s.logger.Info("Attempt failed while another is pending, allocation kept",
			zap.String("payment_id", p.ID.String()),
			zap.String("invoice_id", inv.ID.String()),
			zap.Int("pending", others),
		)
		return nil
	}
	if _, err := s.allocation.ReleaseLocked(ctx, tx, inv, releaseReasonPaymentFailed); err != nil {
		return err
	}
	inv.Status = models.InvoiceStatusPaymentFailed
	if err := tx.Invoices.Update(ctx, inv); err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}
	return nil
}

func (s *paymentServiceImpl) failAttempt(ctx context.Context, paymentID uuid.UUID, reason string) error {
	var payment *models.Payment
	var invoice *models.Invoice
	settled := false
	err := s.uow.Do(ctx, func(tx *repository.Tx) error {
		p, err := tx.LockPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if p.Status.IsTerminal() {
			return nil
		}
		inv, err := s.resolver.ResolveInvoice(ctx, tx, p.Payable)
		if err != nil {
			return err
		}
		payment, invoice, settled = p, inv, true
		return s.settleFailure(ctx, tx, p, inv, reason)
	})
	if err != nil {
		return err
	}
	if settled {
		s.events.Publish(ctx, EventInvoicePaymentFailed, invoice, payment, reason)
	}
	return nil
}

// lockPendingPayments takes the invoice's unsettled attempts FOR UPDATE ahead of the invoice
// row itself, keeping the payment before invoice lock order.
func lockPendingPayments(ctx context.Context, tx *repository.Tx, invoiceID uuid.UUID) ([]*models.Payment, error) {
	all, err := tx.Payments.ListByInvoiceID(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(all))
	for _, p := range all {
		if p.Status == models.PaymentStatusPending {
			ids = append(ids, p.ID)
		}
	}
	sortIDs(ids)

	locked := make([]*models.Payment, 0, len(ids))
	for _, id := range ids {
		p, err := tx.LockPayment(ctx, id)
		if err != nil {
			return nil, err
		}
		if p.Status == models.PaymentStatusPending {
			locked = append(locked, p)
		}
	}
	return locked, nil
}

// otherPendingPayments counts the invoice's pending attempts outside known. It reads without
// locking, so it is safe after the invoice row is held.
func otherPendingPayments(ctx context.Context, tx *repository.Tx, invoiceID uuid.UUID, known ...*models.Payment) (int, error) {
	all, err := tx.Payments.ListByInvoiceID(ctx, invoiceID)
	if err != nil {
		return 0, fmt.Errorf("list payments: %w", err)
	}
	skip := make(map[uuid.UUID]struct{}, len(known))
	for _, p := range known {
		skip[p.ID] = struct{}{}
	}
	n := 0
	for _, p := range all {
		if _, ok := skip[p.ID]; ok {
			continue
		}
		if p.Status == models.PaymentStatusPending {
			n++
		}
	}
	return n, nil
}

func providerError(err error) *ServiceError {
	if errors.Is(err, providers.ErrProviderDisabled) {
		return validationError("provider", ReasonProviderDisabled, "Payment provider is disabled")
	}
	return validationError("provider", ReasonProviderUnsupported, "Payment provider is not supported")
}

func callbackResult(p *models.Payment, inv *models.Invoice, duplicate bool) *CallbackResult {
	return &CallbackResult{
		PaymentID:     p.ID,
		InvoiceID:     inv.ID,
		PaymentStatus: p.Status,
		InvoiceStatus: inv.Status,
		Reference:     p.Reference,
		Reason:        p.FailureReason,
		Duplicate:     duplicate,
	}
}

func newCallbackToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
