package services

import (
	"context"
	"testing"

	"fulfillment-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocation_ReleaseAndReserveAreIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mug := f.seedProduct(t, "mug", "20.00", intPtr(10))
	coupon := f.seedCoupon(t, &models.Coupon{Code: "WELCOME10", Type: models.CouponTypePercent, Value: d("10")})
	invoice := f.checkoutOne(t, mug, 3, "WELCOME10")

	changed, err := f.allocation.ReleaseForFailedPayment(ctx, invoice.ID, "payment_failed")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 10, *f.product(t, mug.ID).Stock)
	assert.Equal(t, 0, f.coupon(t, coupon.ID).UsedCount)

	changed, err = f.allocation.ReleaseForFailedPayment(ctx, invoice.ID, "payment_failed")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 10, *f.product(t, mug.ID).Stock)

	changed, err = f.allocation.ReserveForRetry(ctx, invoice.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 7, *f.product(t, mug.ID).Stock)
	assert.Equal(t, 1, f.coupon(t, coupon.ID).UsedCount)

	changed, err = f.allocation.ReserveForRetry(ctx, invoice.ID)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 7, *f.product(t, mug.ID).Stock)
	assert.Equal(t, 3, f.product(t, mug.ID).SoldCount)

	state := f.invoice(t, invoice.ID).Allocation()
	assert.False(t, state.IsReleased())
	assert.NotNil(t, state.ReservedAt)
	assert.NotNil(t, state.ReReservedAt)
	assert.Equal(t, models.AllocationReserved, state.LastAction)
}

func TestAllocation_ReserveFailsWhenCouponExhausted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mug := f.seedProduct(t, "mug", "20.00", intPtr(10))
	f.seedCoupon(t, &models.Coupon{Code: "SOLO", Type: models.CouponTypeFixed, Value: d("5"), MaxUses: intPtr(1)})
	invoice := f.checkoutOne(t, mug, 1, "SOLO")

	_, err := f.allocation.ReleaseForFailedPayment(ctx, invoice.ID, "payment_failed")
	require.NoError(t, err)

	other, otherAddress := f.seedCustomer(t)
	_, svcErr := f.checkout.Checkout(ctx, other.ID, &CheckoutRequest{
		AddressID:  otherAddress.ID,
		CouponCode: "SOLO",
		Items:      []CheckoutItem{{ProductID: mug.ID, Quantity: 1}},
	})
	require.Nil(t, svcErr)

	_, err = f.allocation.ReserveForRetry(ctx, invoice.ID)
	require.Error(t, err)
	assert.Equal(t, ReasonCouponUsageLimit, reasonOf(t, err))

	// the failed retry left the stock of the first invoice released
	assert.Equal(t, 9, *f.product(t, mug.ID).Stock)
	assert.True(t, f.invoice(t, invoice.ID).Allocation().IsReleased())
}

func TestAllocation_ReleaseWithoutReservationIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mug := f.seedProduct(t, "mug", "20.00", intPtr(10))
	invoice := f.checkoutOne(t, mug, 1, "")
	require.NoError(t, f.db.Model(&models.Invoice{}).Where("id = ?", invoice.ID).Update("metadata", "{}").Error)

	changed, err := f.allocation.ReleaseForFailedPayment(ctx, invoice.ID, "payment_failed")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 9, *f.product(t, mug.ID).Stock)
}
