package services

import (
	"context"
	"testing"

	"fulfillment-service/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCart_CheckReportsEveryLine(t *testing.T) {
	f := newFixture(t)
	mug := f.seedProduct(t, "mug", "20.00", intPtr(2))
	ebook := f.seedProduct(t, "ebook", "4.50", nil)
	missing := uuid.New()

	result, svcErr := f.cart.CheckCart(context.Background(), &CartRequest{Items: []CheckoutItem{
		{ProductID: mug.ID, Quantity: 3},
		{ProductID: ebook.ID, Quantity: 2},
		{ProductID: missing, Quantity: 1},
	}})
	require.Nil(t, svcErr)
	require.Len(t, result.Items, 3)
	assert.False(t, result.Valid)
	assert.Equal(t, "USD", result.Currency)

	assert.True(t, result.Items[0].Available)
	assert.False(t, result.Items[0].InStock)
	assert.Equal(t, ReasonInsufficientStock, result.Items[0].Reason)
	assert.Equal(t, "60.00", result.Items[0].Total.StringFixed(2))

	assert.True(t, result.Items[1].InStock)
	assert.Empty(t, result.Items[1].Reason)
	assert.Nil(t, result.Items[1].Stock)

	assert.False(t, result.Items[2].Available)
	assert.Equal(t, ReasonProductUnavailable, result.Items[2].Reason)

	assert.Equal(t, "69.00", result.Subtotal.StringFixed(2))

	// checking never reserves anything
	assert.Equal(t, 2, *f.product(t, mug.ID).Stock)
}

func TestCart_CheckValidCart(t *testing.T) {
	f := newFixture(t)
	mug := f.seedProduct(t, "mug", "20.00", intPtr(5))

	result, svcErr := f.cart.CheckCart(context.Background(), &CartRequest{Items: []CheckoutItem{{ProductID: mug.ID, Quantity: 5}}})
	require.Nil(t, svcErr)
	assert.True(t, result.Valid)
	assert.Equal(t, "100.00", result.Subtotal.StringFixed(2))

	_, svcErr = f.cart.CheckCart(context.Background(), &CartRequest{})
	require.NotNil(t, svcErr)
	assert.Equal(t, ReasonInvalidInput, svcErr.Reason)
}

func TestCart_PreviewCouponMatchesCheckout(t *testing.T) {
	f := newFixture(t)
	mug := f.seedProduct(t, "mug", "20.00", intPtr(10))
	f.seedCoupon(t, &models.Coupon{
		Code:        "SAVE25",
		Type:        models.CouponTypePercent,
		Value:       d("25"),
		MaxDiscount: decimal.NewNullDecimal(d("10")),
	})
	items := []CheckoutItem{{ProductID: mug.ID, Quantity: 3}}

	preview, svcErr := f.cart.PreviewCoupon(context.Background(), f.user.ID, &CouponPreviewRequest{CouponCode: "save25", Items: items})
	require.Nil(t, svcErr)
	assert.Equal(t, "SAVE25", preview.Coupon.Code)
	assert.Equal(t, "60.00", preview.Summary.Subtotal.StringFixed(2))
	assert.Equal(t, "10.00", preview.Summary.Discount.StringFixed(2))
	assert.Equal(t, "5.00", preview.Summary.Shipping.StringFixed(2))
	assert.Equal(t, "5.50", preview.Summary.Tax.StringFixed(2))
	assert.Equal(t, "60.50", preview.Summary.Total.StringFixed(2))

	// the preview wrote nothing
	assert.Equal(t, 10, *f.product(t, mug.ID).Stock)

	invoice, svcErr := f.checkout.Checkout(context.Background(), f.user.ID, &CheckoutRequest{
		AddressID:  f.address.ID,
		CouponCode: "SAVE25",
		Items:      items,
	})
	require.Nil(t, svcErr)
	assert.Equal(t, preview.Summary.Total.StringFixed(2), invoice.Total.StringFixed(2))
}

func TestCart_PreviewCouponRejections(t *testing.T) {
	f := newFixture(t)
	mug := f.seedProduct(t, "mug", "20.00", intPtr(10))
	f.seedCoupon(t, &models.Coupon{Code: "MIN100", Type: models.CouponTypeFixed, Value: d("15"), MinSubtotal: decimal.NewNullDecimal(d("100"))})

	_, svcErr := f.cart.PreviewCoupon(context.Background(), f.user.ID, &CouponPreviewRequest{
		CouponCode: "MIN100",
		Items:      []CheckoutItem{{ProductID: mug.ID, Quantity: 1}},
	})
	require.NotNil(t, svcErr)
	assert.Equal(t, ReasonCouponMinSubtotal, svcErr.Reason)
	assert.Equal(t, "coupon_code", svcErr.Field)

	_, svcErr = f.cart.PreviewCoupon(context.Background(), f.user.ID, &CouponPreviewRequest{
		CouponCode: "MISSING",
		Items:      []CheckoutItem{{ProductID: mug.ID, Quantity: 1}},
	})
	require.NotNil(t, svcErr)
	assert.Equal(t, ReasonCouponNotFound, svcErr.Reason)
}
