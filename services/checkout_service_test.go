package services

import (
	"context"
	"testing"

	"fulfillment-service/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCheckout_ReservesStockAndCoupon(t *testing.T) {
	f := newFixture(t)
	mug := f.seedProduct(t, "mug", "20.00", intPtr(10))
	coupon := f.seedCoupon(t, &models.Coupon{Code: "WELCOME10", Type: models.CouponTypePercent, Value: d("10")})

	invoice := f.checkoutOne(t, mug, 3, "welcome10")

	assert.Equal(t, models.InvoiceStatusPending, invoice.Status)
	assert.Equal(t, "USD", invoice.Currency)
	assert.Equal(t, "60.00", invoice.Subtotal.StringFixed(2))
	assert.Equal(t, "6.00", invoice.Discount.StringFixed(2))
	assert.Equal(t, "5.00", invoice.Shipping.StringFixed(2))
	assert.Equal(t, "5.90", invoice.Tax.StringFixed(2))
	assert.Equal(t, "64.90", invoice.Total.StringFixed(2))
	assert.True(t, invoice.Total.Equal(invoice.ExpectedTotal()))
	require.NotNil(t, invoice.CouponID)
	assert.Equal(t, coupon.ID, *invoice.CouponID)
	assert.Equal(t, "WELCOME10", invoice.CouponCode)
	require.NotNil(t, invoice.Address)
	assert.Equal(t, f.address.ID, invoice.Address.ID)
	assert.Regexp(t, `^INV-\d{8}-[0-9A-F]{8}$`, invoice.Number)

	stored := f.invoice(t, invoice.ID)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, "mug", stored.Items[0].Name)
	assert.Equal(t, 3, stored.Items[0].Quantity)
	assert.Equal(t, "60.00", stored.Items[0].Total.StringFixed(2))
	state := stored.Allocation()
	assert.NotNil(t, state.ReservedAt)
	assert.False(t, state.IsReleased())

	product := f.product(t, mug.ID)
	assert.Equal(t, 7, *product.Stock)
	assert.Equal(t, 3, product.SoldCount)
	assert.Equal(t, 1, f.coupon(t, coupon.ID).UsedCount)
	assert.EqualValues(t, 1, f.usageCount(t, coupon.ID))

	assert.Equal(t, []string{EventInvoiceCreated}, f.sns.eventTypes(t))
}

func TestCheckout_FreeShippingAboveThreshold(t *testing.T) {
	f := newFixture(t)
	lamp := f.seedProduct(t, "lamp", "120.00", nil)

	invoice := f.checkoutOne(t, lamp, 1, "")

	assert.Equal(t, "0.00", invoice.Shipping.StringFixed(2))
	assert.Equal(t, "12.00", invoice.Tax.StringFixed(2))
	assert.Equal(t, "132.00", invoice.Total.StringFixed(2))
	assert.Nil(t, invoice.CouponID)
}

func TestCheckout_ValidationFailures(t *testing.T) {
	f := newFixture(t)
	mug := f.seedProduct(t, "mug", "20.00", intPtr(10))
	euro := f.seedProduct(t, "euro", "20.00", nil)
	euro.Currency = "EUR"
	require.NoError(t, f.db.Model(euro).Update("currency", "EUR").Error)
	retired := f.seedProduct(t, "retired", "20.00", nil)
	require.NoError(t, f.db.Model(retired).Update("status", models.ProductStatusInactive).Error)
	_, strangerAddress := f.seedCustomer(t)

	tests := []struct {
		name   string
		req    *CheckoutRequest
		field  string
		reason string
	}{
		{
			name:   "no items",
			req:    &CheckoutRequest{AddressID: f.address.ID},
			field:  "items",
			reason: ReasonInvalidInput,
		},
		{
			name: "duplicate product",
			req: &CheckoutRequest{AddressID: f.address.ID, Items: []CheckoutItem{
				{ProductID: mug.ID, Quantity: 1}, {ProductID: mug.ID, Quantity: 2},
			}},
			field:  "items",
			reason: ReasonInvalidInput,
		},
		{
			name:   "address of someone else",
			req:    &CheckoutRequest{AddressID: strangerAddress.ID, Items: []CheckoutItem{{ProductID: mug.ID, Quantity: 1}}},
			field:  "address_id",
			reason: ReasonAddressNotOwned,
		},
		{
			name:   "unknown product",
			req:    &CheckoutRequest{AddressID: f.address.ID, Items: []CheckoutItem{{ProductID: uuid.New(), Quantity: 1}}},
			field:  "items",
			reason: ReasonProductUnavailable,
		},
		{
			name:   "inactive product",
			req:    &CheckoutRequest{AddressID: f.address.ID, Items: []CheckoutItem{{ProductID: retired.ID, Quantity: 1}}},
			field:  "items",
			reason: ReasonProductUnavailable,
		},
		{
			name:   "not enough stock",
			req:    &CheckoutRequest{AddressID: f.address.ID, Items: []CheckoutItem{{ProductID: mug.ID, Quantity: 11}}},
			field:  "items",
			reason: ReasonInsufficientStock,
		},
		{
			name: "mixed currencies",
			req: &CheckoutRequest{AddressID: f.address.ID, Items: []CheckoutItem{
				{ProductID: mug.ID, Quantity: 1}, {ProductID: euro.ID, Quantity: 1},
			}},
			field:  "items",
			reason: ReasonCurrencyMismatch,
		},
		{
			name:   "unknown coupon",
			req:    &CheckoutRequest{AddressID: f.address.ID, CouponCode: "NOPE", Items: []CheckoutItem{{ProductID: mug.ID, Quantity: 1}}},
			field:  "coupon_code",
			reason: ReasonCouponNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			invoice, svcErr := f.checkout.Checkout(context.Background(), f.user.ID, tt.req)
			assert.Nil(t, invoice)
			require.NotNil(t, svcErr)
			assert.Equal(t, 422, svcErr.StatusCode)
			assert.Equal(t, tt.field, svcErr.Field)
			assert.Equal(t, tt.reason, svcErr.Reason)
		})
	}

	// every failure rolled back
	assert.Equal(t, 10, *f.product(t, mug.ID).Stock)
	assert.Equal(t, 0, f.product(t, mug.ID).SoldCount)
	assert.Empty(t, f.sns.eventTypes(t))
}

func TestCheckout_PerUserCouponLimit(t *testing.T) {
	f := newFixture(t)
	mug := f.seedProduct(t, "mug", "20.00", intPtr(10))
	coupon := f.seedCoupon(t, &models.Coupon{Code: "FIRSTORDER", Type: models.CouponTypeFixed, Value: d("5"), MaxUsesPerUser: intPtr(1)})

	f.checkoutOne(t, mug, 1, "FIRSTORDER")

	invoice, svcErr := f.checkout.Checkout(context.Background(), f.user.ID, &CheckoutRequest{
		AddressID:  f.address.ID,
		CouponCode: "FIRSTORDER",
		Items:      []CheckoutItem{{ProductID: mug.ID, Quantity: 1}},
	})
	assert.Nil(t, invoice)
	require.NotNil(t, svcErr)
	assert.Equal(t, ReasonCouponUserLimit, svcErr.Reason)

	assert.Equal(t, 9, *f.product(t, mug.ID).Stock)
	assert.Equal(t, 1, f.coupon(t, coupon.ID).UsedCount)
}

func TestCheckout_GlobalCouponLimit(t *testing.T) {
	f := newFixture(t)
	mug := f.seedProduct(t, "mug", "20.00", nil)
	f.seedCoupon(t, &models.Coupon{Code: "LAST", Type: models.CouponTypeFixed, Value: d("5"), MaxUses: intPtr(1)})

	f.checkoutOne(t, mug, 1, "LAST")

	other, otherAddress := f.seedCustomer(t)
	_, svcErr := f.checkout.Checkout(context.Background(), other.ID, &CheckoutRequest{
		AddressID:  otherAddress.ID,
		CouponCode: "LAST",
		Items:      []CheckoutItem{{ProductID: mug.ID, Quantity: 1}},
	})
	require.NotNil(t, svcErr)
	assert.Equal(t, ReasonCouponUsageLimit, svcErr.Reason)
}

func TestCheckout_Welcome10WithoutShippingOrTax(t *testing.T) {
	f := newFixture(t)
	log := zap.NewNop()
	checkout := NewCheckoutService(f.uow, f.ledger, f.coupons, NewPricingCalculator(PricingConfig{}), NewInvoiceEvents(f.sns, testTopicArn, log), log)

	rug := f.seedProduct(t, "rug", "100000.00", intPtr(5))
	coupon := f.seedCoupon(t, &models.Coupon{
		Code:        "WELCOME10",
		Type:        models.CouponTypePercent,
		Value:       d("10"),
		MinSubtotal: decimal.NewNullDecimal(d("50000")),
	})

	invoice, svcErr := checkout.Checkout(context.Background(), f.user.ID, &CheckoutRequest{
		AddressID:  f.address.ID,
		CouponCode: "WELCOME10",
		Items:      []CheckoutItem{{ProductID: rug.ID, Quantity: 2}},
	})
	require.Nil(t, svcErr)

	assert.Equal(t, "200000.00", invoice.Subtotal.StringFixed(2))
	assert.Equal(t, "20000.00", invoice.Discount.StringFixed(2))
	assert.True(t, invoice.Shipping.IsZero())
	assert.True(t, invoice.Tax.IsZero())
	assert.Equal(t, "180000.00", invoice.Total.StringFixed(2))
	assert.Equal(t, invoice.ExpectedTotal().StringFixed(2), invoice.Total.StringFixed(2))
	assert.Equal(t, 3, *f.product(t, rug.ID).Stock)
	assert.Equal(t, 1, f.coupon(t, coupon.ID).UsedCount)
}
