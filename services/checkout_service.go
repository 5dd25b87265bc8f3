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

type CheckoutItem struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

type CheckoutRequest struct {
	AddressID  uuid.UUID      `json:"address_id"`
	CouponCode string         `json:"coupon_code"`
	Items      []CheckoutItem `json:"items"`
}

// CheckoutService turns a cart into a pending invoice with stock and coupon usage reserved.
type CheckoutService interface {
	Checkout(ctx context.Context, userID uuid.UUID, req *CheckoutRequest) (*models.Invoice, *ServiceError)
}

type checkoutServiceImpl struct {
	uow     *repository.UnitOfWork
	ledger  InventoryLedger
	coupons CouponEngine
	pricing *PricingCalculator
	events  *InvoiceEvents
	logger  *zap.Logger
}

func NewCheckoutService(
	uow *repository.UnitOfWork,
	ledger InventoryLedger,
	coupons CouponEngine,
	pricing *PricingCalculator,
	events *InvoiceEvents,
	logger *zap.Logger,
) CheckoutService {
	return &checkoutServiceImpl{
		uow:     uow,
		ledger:  ledger,
		coupons: coupons,
		pricing: pricing,
		events:  events,
		logger:  logger,
	}
}

func (s *checkoutServiceImpl) Checkout(ctx context.Context, userID uuid.UUID, req *CheckoutRequest) (*models.Invoice, *ServiceError) {
	if svcErr := validateItems(req.Items); svcErr != nil {
		return nil, svcErr
	}
	if req.AddressID == uuid.Nil {
		return nil, validationError("address_id", ReasonInvalidInput, "Address is required")
	}

	var invoice *models.Invoice
	err := s.uow.Do(ctx, func(tx *repository.Tx) error {
		address, err := tx.Addresses.FindByIDAndUserID(ctx, req.AddressID, userID)
		if errors.Is(err, repository.ErrNotFound) {
			return validationError("address_id", ReasonAddressNotOwned, "Address not found for this user")
		}
		if err != nil {
			return fmt.Errorf("load address: %w", err)
		}

		ids := make([]uuid.UUID, 0, len(req.Items))
		for _, item := range req.Items {
			ids = append(ids, item.ProductID)
		}
		sortIDs(ids)
		products, err := tx.LockProducts(ctx, ids)
		if err != nil {
			return fmt.Errorf("lock products: %w", err)
		}

		items, currency, svcErr := buildItems(req.Items, products, true)
		if svcErr != nil {
			return svcErr
		}

		subtotal := decimal.Zero
		for _, item := range items {
			subtotal = subtotal.Add(item.Total)
		}
		subtotal = models.RoundMoney(subtotal)

		var coupon *models.Coupon
		discount := decimal.Zero
		if strings.TrimSpace(req.CouponCode) != "" {
			coupon, err = s.coupons.ResolveValidCoupon(ctx, tx, CouponRequest{
				Code:     req.CouponCode,
				Subtotal: subtotal,
				Currency: currency,
				UserID:   userID,
			}, true)
			if err != nil {
				return err
			}
			discount = s.coupons.CalculateDiscount(coupon, subtotal)
		}

		price := s.pricing.Calculate(subtotal.Sub(discount))
		now := time.Now().UTC()

		invoice = &models.Invoice{
			Number:    newInvoiceNumber(now),
			UserID:    userID,
			AddressID: address.ID,
			Currency:  currency,
			Subtotal:  subtotal,
			Discount:  discount,
			Shipping:  price.Shipping,
			Tax:       price.Tax,
			Total:     InvoiceTotal(subtotal, discount, price.Tax, price.Shipping),
			Status:    models.InvoiceStatusPending,
			Items:     items,
		}
		if coupon != nil {
			invoice.CouponID = &coupon.ID
			invoice.CouponCode = coupon.Code
		}
		invoice.MarkReserved(now)

		if err := tx.Invoices.Create(ctx, invoice); err != nil {
			return fmt.Errorf("create invoice: %w", err)
		}

		if err := s.ledger.Reserve(ctx, tx, LinesFromItems(invoice.Items)); err != nil {
			return stockValidationError(err)
		}

		if coupon != nil {
			if _, err := s.coupons.ReserveCouponUsage(ctx, tx, coupon, invoice, discount); err != nil {
				return err
			}
		}

		invoice.Address = address
		return nil
	})
	if err != nil {
		return nil, asServiceError(err, "Failed to create invoice")
	}

	s.logger.Info("Invoice created",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("number", invoice.Number),
		zap.String("user_id", userID.String()),
		zap.String("total", invoice.Total.StringFixed(2)),
	)
	s.events.Publish(ctx, EventInvoiceCreated, invoice, nil, "")
	return invoice, nil
}

func validateItems(items []CheckoutItem) *ServiceError {
	if len(items) == 0 {
		return validationError("items", ReasonInvalidInput, "At least one item is required")
	}
	seen := make(map[uuid.UUID]struct{}, len(items))
	for _, item := range items {
		if item.ProductID == uuid.Nil {
			return validationError("items", ReasonInvalidInput, "Every item needs a product_id")
		}
		if item.Quantity < 1 {
			return validationError("items", ReasonInvalidInput, "Quantity must be at least 1")
		}
		if _, dup := seen[item.ProductID]; dup {
			return validationError("items", ReasonInvalidInput, fmt.Sprintf("Product %s appears more than once", item.ProductID))
		}
		seen[item.ProductID] = struct{}{}
	}
	return nil
}

// buildItems snapshots the requested products into invoice items in request order. With
// checkStock set a short product fails the whole request.
func buildItems(req []CheckoutItem, products map[uuid.UUID]*models.Product, checkStock bool) ([]models.InvoiceItem, string, *ServiceError) {
	items := make([]models.InvoiceItem, 0, len(req))
	currency := ""
	for _, line := range req {
		p, ok := products[line.ProductID]
		if !ok || !p.IsAvailable() {
			return nil, "", validationError("items", ReasonProductUnavailable, fmt.Sprintf("Product %s is not available", line.ProductID))
		}
		if currency == "" {
			currency = strings.ToUpper(p.Currency)
		} else if !strings.EqualFold(currency, p.Currency) {
			return nil, "", validationError("items", ReasonCurrencyMismatch, "All items must share one currency")
		}
		if checkStock && !p.HasStock(line.Quantity) {
			return nil, "", validationError("items", ReasonInsufficientStock,
				fmt.Sprintf("Insufficient stock for %s: requested %d, available %d", p.Name, line.Quantity, *p.Stock))
		}
		items = append(items, models.NewInvoiceItem(p, line.Quantity))
	}
	return items, currency, nil
}

func stockValidationError(err error) error {
	var stockErr *StockError
	if errors.As(err, &stockErr) {
		if stockErr.Missing {
			return validationError("items", ReasonProductUnavailable, stockErr.Error())
		}
		return validationError("items", ReasonInsufficientStock, stockErr.Error())
	}
	return err
}

func newInvoiceNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("INV-%s-%s", now.Format("20060102"), suffix)
}
