package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"fulfillment-service/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInvoiceEvents_PublishPayload(t *testing.T) {
	sns := &mockSNS{}
	events := NewInvoiceEvents(sns, testTopicArn, zap.NewNop())
	invoice := &models.Invoice{
		ID:         uuid.New(),
		Number:     "INV-20260101-ABCDEF12",
		UserID:     uuid.New(),
		Status:     models.InvoiceStatusPaymentFailed,
		Total:      d("64.9"),
		Currency:   "USD",
		CouponCode: "WELCOME10",
	}
	payment := &models.Payment{ID: uuid.New(), Provider: "mock"}

	events.Publish(context.Background(), EventInvoicePaymentFailed, invoice, payment, "mock_declined")

	require.Len(t, sns.messages, 1)
	var event InvoiceEvent
	require.NoError(t, json.Unmarshal(sns.messages[0], &event))
	assert.Equal(t, EventInvoicePaymentFailed, event.EventType)
	assert.Equal(t, invoice.ID.String(), event.InvoiceID)
	assert.Equal(t, "payment_failed", event.Status)
	assert.Equal(t, "64.90", event.Total)
	assert.Equal(t, payment.ID.String(), event.PaymentID)
	assert.Equal(t, "mock", event.Provider)
	assert.Equal(t, "mock_declined", event.Reason)
	assert.False(t, event.Timestamp.IsZero())
}

func TestInvoiceEvents_BestEffort(t *testing.T) {
	invoice := &models.Invoice{ID: uuid.New(), Total: d("1")}

	// unconfigured publishers and nil receivers are silently skipped
	var nilEvents *InvoiceEvents
	assert.NotPanics(t, func() { nilEvents.Publish(context.Background(), EventInvoicePaid, invoice, nil, "") })
	assert.NotPanics(t, func() {
		NewInvoiceEvents(nil, testTopicArn, zap.NewNop()).Publish(context.Background(), EventInvoicePaid, invoice, nil, "")
	})

	sns := &mockSNS{}
	NewInvoiceEvents(sns, "", zap.NewNop()).Publish(context.Background(), EventInvoicePaid, invoice, nil, "")
	assert.Empty(t, sns.messages)

	failing := &mockSNS{err: errors.New("sns down")}
	assert.NotPanics(t, func() {
		NewInvoiceEvents(failing, testTopicArn, zap.NewNop()).Publish(context.Background(), EventInvoicePaid, invoice, nil, "")
	})
}

func TestInvoiceEvents_SNSFailureDoesNotFailCheckout(t *testing.T) {
	f := newFixture(t)
	f.sns.err = errors.New("sns down")
	mug := f.seedProduct(t, "mug", "20.00", intPtr(10))

	invoice := f.checkoutOne(t, mug, 1, "")
	assert.Equal(t, models.InvoiceStatusPending, invoice.Status)
	assert.Equal(t, 9, *f.product(t, mug.ID).Stock)
}
