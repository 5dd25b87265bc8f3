package services

import (
	"context"
	"fmt"
	"strings"

	"fulfillment-service/models"
	"fulfillment-service/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type CartRequest struct {
	Items []CheckoutItem `json:"items"`
}

type CouponPreviewRequest struct {
	CouponCode string         `json:"coupon_code"`
	Items      []CheckoutItem `json:"items"`
}

// CartLine reports one requested product without reserving anything.
type CartLine struct {
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Total     decimal.Decimal `json:"total"`
	Available bool            `json:"available"`
	InStock   bool            `json:"in_stock"`
	Stock     *int            `json:"stock"`
	Reason    string          `json:"reason,omitempty"`
}

type CartCheckResult struct {
	Items    []CartLine      `json:"items"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Currency string          `json:"currency,omitempty"`
	Valid    bool            `json:"valid"`
}

type CouponSummary struct {
	ID          uuid.UUID           `json:"id"`
	Code        string              `json:"code"`
	Type        models.CouponType   `json:"type"`
	Value       decimal.Decimal     `json:"value"`
	MaxDiscount decimal.NullDecimal `json:"max_discount"`
}

type CartSummary struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Shipping decimal.Decimal `json:"shipping"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
	Currency string          `json:"currency"`
}

type CouponPreview struct {
	Coupon  CouponSummary `json:"coupon"`
	Summary CartSummary   `json:"summary"`
}

// CartService answers cart questions without writing anything.
type CartService interface {
	CheckCart(ctx context.Context, req *CartRequest) (*CartCheckResult, *ServiceError)
	PreviewCoupon(ctx context.Context, userID uuid.UUID, req *CouponPreviewRequest) (*CouponPreview, *ServiceError)
}

type cartServiceImpl struct {
	uow     *repository.UnitOfWork
	coupons CouponEngine
	pricing *PricingCalculator
	logger  *zap.Logger
}

func NewCartService(uow *repository.UnitOfWork, coupons CouponEngine, pricing *PricingCalculator, logger *zap.Logger) CartService {
	return &cartServiceImpl{uow: uow, coupons: coupons, pricing: pricing, logger: logger}
}

func (s *cartServiceImpl) CheckCart(ctx context.Context, req *CartRequest) (*CartCheckResult, *ServiceError) {
	if svcErr := validateItems(req.Items); svcErr != nil {
		return nil, svcErr
	}

	var result *CartCheckResult
	err := s.uow.Read(ctx, func(tx *repository.Tx) error {
		products, err := s.loadProducts(ctx, tx, req.Items)
		if err != nil {
			return err
		}

		result = &CartCheckResult{Items: make([]CartLine, 0, len(req.Items)), Subtotal: decimal.Zero, Valid: true}
		for _, item := range req.Items {
			line := CartLine{ProductID: item.ProductID, Quantity: item.Quantity, UnitPrice: decimal.Zero, Total: decimal.Zero}
			p, ok := products[item.ProductID]
			switch {
			case !ok:
				line.Reason = ReasonProductUnavailable
			case !p.IsAvailable():
				line.Name = p.Name
				line.Reason = ReasonProductUnavailable
			default:
				line.Name = p.Name
				line.Available = true
				line.Stock = p.Stock
				line.UnitPrice = models.RoundMoney(p.Price)
				line.Total = models.RoundMoney(line.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
				line.InStock = p.HasStock(item.Quantity)
				if !line.InStock {
					line.Reason = ReasonInsufficientStock
				}
				if result.Currency == "" {
					result.Currency = strings.ToUpper(p.Currency)
				} else if !strings.EqualFold(result.Currency, p.Currency) {
					line.Reason = ReasonCurrencyMismatch
				}
			}
			if line.Reason != "" {
				result.Valid = false
			}
			if line.Available {
				result.Subtotal = result.Subtotal.Add(line.Total)
			}
			result.Items = append(result.Items, line)
		}
		result.Subtotal = models.RoundMoney(result.Subtotal)
		return nil
	})
	if err != nil {
		return nil, asServiceError(err, "Failed to check cart")
	}
	return result, nil
}

func (s *cartServiceImpl) PreviewCoupon(ctx context.Context, userID uuid.UUID, req *CouponPreviewRequest) (*CouponPreview, *ServiceError) {
	if svcErr := validateItems(req.Items); svcErr != nil {
		return nil, svcErr
	}

	var preview *CouponPreview
	err := s.uow.Read(ctx, func(tx *repository.Tx) error {
		products, err := s.loadProducts(ctx, tx, req.Items)
		if err != nil {
			return err
		}
		items, currency, svcErr := buildItems(req.Items, products, false)
		if svcErr != nil {
			return svcErr
		}

		subtotal := decimal.Zero
		for _, item := range items {
			subtotal = subtotal.Add(item.Total)
		}
		subtotal = models.RoundMoney(subtotal)

		coupon, err := s.coupons.ResolveValidCoupon(ctx, tx, CouponRequest{
			Code:     req.CouponCode,
			Subtotal: subtotal,
			Currency: currency,
			UserID:   userID,
		}, false)
		if err != nil {
			return err
		}

		discount := s.coupons.CalculateDiscount(coupon, subtotal)
		price := s.pricing.Calculate(subtotal.Sub(discount))
		preview = &CouponPreview{
			Coupon: CouponSummary{
				ID:          coupon.ID,
				Code:        coupon.Code,
				Type:        coupon.Type,
				Value:       coupon.Value,
				MaxDiscount: coupon.MaxDiscount,
			},
			Summary: CartSummary{
				Subtotal: subtotal,
				Discount: discount,
				Shipping: price.Shipping,
				Tax:      price.Tax,
				Total:    InvoiceTotal(subtotal, discount, price.Tax, price.Shipping),
				Currency: currency,
			},
		}
		return nil
	})
	if err != nil {
		return nil, asServiceError(err, "Failed to preview coupon")
	}
	return preview, nil
}

func (s *cartServiceImpl) loadProducts(ctx context.Context, tx *repository.Tx, items []CheckoutItem) (map[uuid.UUID]*models.Product, error) {
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	found, err := tx.Products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	products := make(map[uuid.UUID]*models.Product, len(found))
	for i := range found {
		products[found[i].ID] = &found[i]
	}
	return products, nil
}
