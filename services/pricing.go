package services

import (
	"fulfillment-service/models"

	"github.com/shopspring/decimal"
)

// PricingConfig is the canonical source of shipping and tax. Requests never override it.
type PricingConfig struct {
	ShippingFlatFee       decimal.Decimal
	FreeShippingThreshold decimal.NullDecimal
	TaxEnabled            bool
	TaxRatePercent        decimal.Decimal
}

type PriceBreakdown struct {
	Shipping decimal.Decimal `json:"shipping"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// PricingCalculator derives shipping, tax and total from the discounted subtotal.
type PricingCalculator struct {
	cfg PricingConfig
}

func NewPricingCalculator(cfg PricingConfig) *PricingCalculator {
	return &PricingCalculator{cfg: cfg}
}

// Calculate is pure: the same input always yields the same breakdown.
func (p *PricingCalculator) Calculate(subtotalAfterDiscount decimal.Decimal) PriceBreakdown {
	base := models.RoundMoney(subtotalAfterDiscount)

	shipping := models.RoundMoney(p.cfg.ShippingFlatFee)
	if p.cfg.FreeShippingThreshold.Valid && base.GreaterThanOrEqual(p.cfg.FreeShippingThreshold.Decimal) {
		shipping = decimal.Zero
	}

	tax := decimal.Zero
	if p.cfg.TaxEnabled && p.cfg.TaxRatePercent.IsPositive() {
		tax = models.RoundMoney(base.Add(shipping).Mul(p.cfg.TaxRatePercent).Div(decimal.NewFromInt(100)))
	}

	return PriceBreakdown{
		Shipping: shipping,
		Tax:      tax,
		Total:    models.RoundMoney(base.Add(shipping).Add(tax)),
	}
}

// InvoiceTotal applies the invoice total formula round(subtotal - discount + tax + shipping, 2), floored at zero.
func InvoiceTotal(subtotal, discount, tax, shipping decimal.Decimal) decimal.Decimal {
	return models.RoundMoney(subtotal.Sub(discount).Add(tax).Add(shipping))
}
